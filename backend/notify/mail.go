// Package notify sends pattern setup reminders by email.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"

	"github.com/PhilHem/go-pattern-auth/backend/config"
)

type Message struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// NewSender returns an SMTP sender when a server and credentials are
// configured and a log-only sender otherwise.
func NewSender(cfg config.MailConfig) Sender {
	if cfg.SMTPServer == "" || cfg.User == "" || cfg.Password == "" {
		return LogSender{}
	}
	return &SMTPSender{Server: cfg.SMTPServer, User: cfg.User, Password: cfg.Password}
}

// SMTPSender sends through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	Server   string // host:port
	User     string
	Password string
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(s.Server)
	if err != nil {
		return fmt.Errorf("invalid SMTP server %q (expected host:port): %w", s.Server, err)
	}
	if m.From == "" {
		m.From = s.User
	}
	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	body, err := buildMIME(m)
	if err != nil {
		return err
	}

	auth := smtp.PlainAuth("", s.User, s.Password, host)
	if err := smtp.SendMail(s.Server, auth, from.Address, []string{m.To}, body); err != nil {
		return fmt.Errorf("send mail via %s: %w", s.Server, err)
	}
	return nil
}

// buildMIME renders a multipart/alternative message with text and HTML parts.
func buildMIME(m Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())

	parts := []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", m.Text},
		{"text/html; charset=utf-8", m.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LogSender only logs what it would have sent.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, m Message) error {
	slog.Info("email not sent, SMTP not configured", "source", "notify", "to", m.To, "subject", m.Subject)
	return nil
}
