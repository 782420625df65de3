package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/config"

	"golang.org/x/oauth2/clientcredentials"
)

// PingOne talks to the PingOne management API of a single environment.
type PingOne struct {
	api     *apiClient
	baseURL string // {api_url}/environments/{env}
}

func NewPingOne(cfg config.PingOneConfig, httpClient *http.Client) *PingOne {
	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     strings.TrimRight(cfg.AuthURL, "/") + "/" + cfg.EnvironmentID + "/as/token",
	}
	return &PingOne{
		api:     newAPIClient(httpClient, creds),
		baseURL: strings.TrimRight(cfg.APIURL, "/") + "/environments/" + cfg.EnvironmentID,
	}
}

func (p *PingOne) Name() string { return "PingOne" }

type pingOneUser struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	CustomAttribute struct {
		PatternAuthEnabled bool   `json:"patternAuthEnabled"`
		PatternData        string `json:"patternData"`
	} `json:"customAttribute"`
}

func (u pingOneUser) user() *User {
	return &User{ID: u.ID, Username: u.Username, Email: u.Email}
}

func (p *PingOne) CreateUser(ctx context.Context, u NewUser) (*User, error) {
	given := u.FirstName
	if given == "" {
		given = u.Username
	}
	body := map[string]any{
		"username": u.Username,
		"email":    u.Email,
		"name": map[string]string{
			"given":  given,
			"family": u.LastName,
		},
		"customAttribute": map[string]any{
			"patternAuthEnabled": true,
		},
	}
	var created pingOneUser
	if err := p.api.do(ctx, http.MethodPost, p.baseURL+"/users", body, &created); err != nil {
		return nil, fmt.Errorf("create PingOne user: %w", err)
	}
	return created.user(), nil
}

func (p *PingOne) findUser(ctx context.Context, username string) (*pingOneUser, error) {
	q := url.Values{"filter": {fmt.Sprintf("username eq %q", username)}}
	var resp struct {
		Embedded struct {
			Users []pingOneUser `json:"users"`
		} `json:"_embedded"`
	}
	if err := p.api.do(ctx, http.MethodGet, p.baseURL+"/users?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("get PingOne user: %w", err)
	}
	if len(resp.Embedded.Users) == 0 {
		return nil, nil
	}
	return &resp.Embedded.Users[0], nil
}

func (p *PingOne) GetUser(ctx context.Context, username string) (*User, error) {
	u, err := p.findUser(ctx, username)
	if err != nil || u == nil {
		return nil, err
	}
	return u.user(), nil
}

func (p *PingOne) InitiateAuthentication(ctx context.Context, username string) (*Flow, error) {
	u, err := p.findUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	body := map[string]any{
		"type":   "AUTHENTICATION",
		"userId": u.ID,
		"customData": map[string]string{
			"authType":   "patternAuth",
			"flowStatus": "INITIATED",
		},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := p.api.do(ctx, http.MethodPost, p.baseURL+"/flows", body, &resp); err != nil {
		return nil, fmt.Errorf("initiate PingOne flow: %w", err)
	}
	return &Flow{FlowID: resp.ID, UserID: u.ID}, nil
}

func (p *PingOne) CompleteAuthentication(ctx context.Context, flowID string, patternValid bool) (*FlowResult, error) {
	status := flowStatus(patternValid)
	body := map[string]any{
		"customData": map[string]any{
			"flowStatus":      status,
			"patternVerified": patternValid,
			"completedAt":     p.api.now().UTC().Format(time.RFC3339),
		},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := p.api.do(ctx, http.MethodPatch, p.baseURL+"/flows/"+url.PathEscape(flowID), body, &resp); err != nil {
		return nil, fmt.Errorf("complete PingOne flow: %w", err)
	}
	return &FlowResult{FlowID: resp.ID, Status: status, PatternVerified: patternValid}, nil
}

func (p *PingOne) StorePattern(ctx context.Context, username, encoded string) error {
	u, err := p.findUser(ctx, username)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	body := map[string]any{
		"customAttribute": map[string]any{
			"patternAuthEnabled": true,
			"patternData":        encoded,
		},
	}
	if err := p.api.do(ctx, http.MethodPatch, p.baseURL+"/users/"+url.PathEscape(u.ID), body, nil); err != nil {
		return fmt.Errorf("store PingOne pattern: %w", err)
	}
	return nil
}

func (p *PingOne) GetPattern(ctx context.Context, username string) (string, error) {
	u, err := p.findUser(ctx, username)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUserNotFound
	}
	var full pingOneUser
	if err := p.api.do(ctx, http.MethodGet, p.baseURL+"/users/"+url.PathEscape(u.ID), nil, &full); err != nil {
		return "", fmt.Errorf("get PingOne pattern: %w", err)
	}
	return full.CustomAttribute.PatternData, nil
}
