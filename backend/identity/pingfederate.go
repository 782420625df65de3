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

// PingFederate talks to a PingFederate admin API.
type PingFederate struct {
	api     *apiClient
	baseURL string // {base_url}{api_path}
}

func NewPingFederate(cfg config.PingFederateConfig, httpClient *http.Client) *PingFederate {
	base := strings.TrimRight(cfg.BaseURL, "/")
	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + cfg.AuthPath,
		Scopes:       []string{"administrator"},
	}
	return &PingFederate{
		api:     newAPIClient(httpClient, creds),
		baseURL: base + cfg.APIPath,
	}
}

func (p *PingFederate) Name() string { return "PingFederate" }

type pingFedUser struct {
	ID         string            `json:"id"`
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	Attributes map[string]string `json:"attributes"`
}

func (u pingFedUser) user() *User {
	return &User{ID: u.ID, Username: u.Username, Email: u.Email}
}

func (p *PingFederate) CreateUser(ctx context.Context, u NewUser) (*User, error) {
	first := u.FirstName
	if first == "" {
		first = u.Username
	}
	body := map[string]any{
		"username":  u.Username,
		"email":     u.Email,
		"firstName": first,
		"lastName":  u.LastName,
		"attributes": map[string]string{
			"patternAuthEnabled": "true",
		},
	}
	var created pingFedUser
	if err := p.api.do(ctx, http.MethodPost, p.baseURL+"/users", body, &created); err != nil {
		return nil, fmt.Errorf("create PingFederate user: %w", err)
	}
	return created.user(), nil
}

func (p *PingFederate) findUser(ctx context.Context, username string) (*pingFedUser, error) {
	q := url.Values{"filter": {fmt.Sprintf("username eq %q", username)}}
	var resp struct {
		Items []pingFedUser `json:"items"`
	}
	if err := p.api.do(ctx, http.MethodGet, p.baseURL+"/users?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("get PingFederate user: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return &resp.Items[0], nil
}

func (p *PingFederate) GetUser(ctx context.Context, username string) (*User, error) {
	u, err := p.findUser(ctx, username)
	if err != nil || u == nil {
		return nil, err
	}
	return u.user(), nil
}

func (p *PingFederate) InitiateAuthentication(ctx context.Context, username string) (*Flow, error) {
	u, err := p.findUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	body := map[string]any{
		"type":      "PATTERN_AUTH",
		"userId":    u.ID,
		"status":    "INITIATED",
		"createdAt": p.api.now().UTC().Format(time.RFC3339),
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := p.api.do(ctx, http.MethodPost, p.baseURL+"/authenticationFlows", body, &resp); err != nil {
		return nil, fmt.Errorf("initiate PingFederate flow: %w", err)
	}
	return &Flow{FlowID: resp.ID, UserID: u.ID}, nil
}

func (p *PingFederate) CompleteAuthentication(ctx context.Context, flowID string, patternValid bool) (*FlowResult, error) {
	status := flowStatus(patternValid)
	body := map[string]any{
		"status":          status,
		"patternVerified": patternValid,
		"completedAt":     p.api.now().UTC().Format(time.RFC3339),
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := p.api.do(ctx, http.MethodPatch, p.baseURL+"/authenticationFlows/"+url.PathEscape(flowID), body, &resp); err != nil {
		return nil, fmt.Errorf("complete PingFederate flow: %w", err)
	}
	return &FlowResult{FlowID: resp.ID, Status: status, PatternVerified: patternValid}, nil
}

func (p *PingFederate) StorePattern(ctx context.Context, username, encoded string) error {
	u, err := p.findUser(ctx, username)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	body := map[string]any{
		"attributes": map[string]string{
			"patternAuthEnabled": "true",
			"patternData":        encoded,
		},
	}
	if err := p.api.do(ctx, http.MethodPatch, p.baseURL+"/users/"+url.PathEscape(u.ID), body, nil); err != nil {
		return fmt.Errorf("store PingFederate pattern: %w", err)
	}
	return nil
}

func (p *PingFederate) GetPattern(ctx context.Context, username string) (string, error) {
	u, err := p.findUser(ctx, username)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUserNotFound
	}
	var full pingFedUser
	if err := p.api.do(ctx, http.MethodGet, p.baseURL+"/users/"+url.PathEscape(u.ID), nil, &full); err != nil {
		return "", fmt.Errorf("get PingFederate pattern: %w", err)
	}
	return full.Attributes["patternData"], nil
}
