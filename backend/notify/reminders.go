package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/PhilHem/go-pattern-auth/backend/models"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentSends bounds how many reminder emails are in flight.
const maxConcurrentSends = 4

const reminderSubject = "Security Pattern Setup Reminder"

type UserSource interface {
	UsersWithoutPattern(ctx context.Context) ([]models.User, error)
}

// SetupLinker mints single-use setup tokens.
type SetupLinker interface {
	IssueSetupToken(u *models.User) (string, error)
}

// Result counts a reminder batch. JSON names match the cron endpoint.
type Result struct {
	TotalUsers   int `json:"totalUsers"`
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

type Reminders struct {
	users     UserSource
	linker    SetupLinker
	sender    Sender
	publicURL string
	from      string
}

func NewReminders(users UserSource, linker SetupLinker, sender Sender, publicURL, fromAddr, fromName string) *Reminders {
	from := fromAddr
	if fromName != "" {
		from = (&mail.Address{Name: fromName, Address: fromAddr}).String()
	}
	return &Reminders{
		users:     users,
		linker:    linker,
		sender:    sender,
		publicURL: strings.TrimRight(publicURL, "/"),
		from:      from,
	}
}

// SetupURL is the link a user follows to set a pattern without logging in.
func (r *Reminders) SetupURL(token string) string {
	return r.publicURL + "/auth/pattern-setup?token=" + url.QueryEscape(token)
}

// Run emails every user without a pattern. A failed send is counted and
// logged; it never stops the batch.
func (r *Reminders) Run(ctx context.Context) (Result, error) {
	users, err := r.users.UsersWithoutPattern(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list users without pattern: %w", err)
	}
	slog.Info("sending pattern setup reminders", "source", "notify", "users", len(users))

	var sent, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSends)
	for i := range users {
		u := &users[i]
		g.Go(func() error {
			if err := r.remind(ctx, u); err != nil {
				failed.Add(1)
				slog.Warn("reminder failed", "source", "notify", "user_id", u.ID, "error", err.Error())
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	g.Wait()

	res := Result{
		TotalUsers:   len(users),
		SuccessCount: int(sent.Load()),
		FailureCount: int(failed.Load()),
	}
	slog.Info("pattern setup reminders done", "source", "notify",
		"total", res.TotalUsers, "sent", res.SuccessCount, "failed", res.FailureCount)
	return res, nil
}

func (r *Reminders) remind(ctx context.Context, u *models.User) error {
	token, err := r.linker.IssueSetupToken(u)
	if err != nil {
		return err
	}
	msg, err := r.message(u, r.SetupURL(token))
	if err != nil {
		return err
	}
	return r.sender.Send(ctx, msg)
}

var htmlBody = template.Must(template.New("reminder").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Security Pattern Setup Reminder</h2>
  <p>Hello {{.Username}},</p>
  <p>We noticed you haven't set up your security pattern yet. This additional security feature helps protect your account.</p>
  <p><a href="{{.Link}}">Set Up Security Pattern</a></p>
  <p>Or copy and paste this link: {{.Link}}</p>
  <p>This link can be used once and expires in 7 days.</p>
</div>
`))

func (r *Reminders) message(u *models.User, link string) (Message, error) {
	var html bytes.Buffer
	data := struct{ Username, Link string }{u.Username, link}
	if err := htmlBody.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render reminder: %w", err)
	}
	text := fmt.Sprintf("Hello %s,\n\nWe noticed you haven't set up your security pattern yet. "+
		"Please set it up using this link (single use, valid for 7 days):\n\n%s\n\nThank you,\nSecurity Team\n",
		u.Username, link)
	return Message{
		To:      u.Email,
		From:    r.from,
		Subject: reminderSubject,
		Text:    text,
		HTML:    html.String(),
	}, nil
}
