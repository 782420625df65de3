// Package identity delegates user and pattern records to an external identity
// provider. Every call goes through a Facade, which turns provider failures
// into fallback results so local authentication keeps working.
package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/PhilHem/go-pattern-auth/backend/config"
)

// ErrUserNotFound is returned when the provider has no user for a username.
var ErrUserNotFound = errors.New("identity: user not found")

type NewUser struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// User is the provider's view of an account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Flow identifies an authentication flow opened at the provider.
type Flow struct {
	FlowID string `json:"flowId"`
	UserID string `json:"userId"`
}

type FlowResult struct {
	FlowID          string `json:"flowId"`
	Status          string `json:"status"`
	PatternVerified bool   `json:"patternVerified"`
}

const (
	FlowCompleted = "COMPLETED"
	FlowFailed    = "FAILED"
)

func flowStatus(valid bool) string {
	if valid {
		return FlowCompleted
	}
	return FlowFailed
}

// Provider is implemented by each identity backend.
type Provider interface {
	Name() string
	CreateUser(ctx context.Context, u NewUser) (*User, error)
	// GetUser returns nil, nil when the provider has no such user.
	GetUser(ctx context.Context, username string) (*User, error)
	InitiateAuthentication(ctx context.Context, username string) (*Flow, error)
	CompleteAuthentication(ctx context.Context, flowID string, patternValid bool) (*FlowResult, error)
	// StorePattern mirrors the encoded pattern; an empty pattern clears it.
	StorePattern(ctx context.Context, username, encoded string) error
	GetPattern(ctx context.Context, username string) (string, error)
}

// New picks the backend named in cfg. The second result is true when the
// local no-op backend is in use, either by choice or because the selected
// provider lacks its required configuration.
func New(cfg config.IdentityConfig) (Provider, bool) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case config.ProviderPingOne:
		if cfg.PingOne.EnvironmentID == "" {
			return Local{}, true
		}
		return NewPingOne(cfg.PingOne, httpClient), false
	case config.ProviderPingFederate:
		if cfg.PingFederate.BaseURL == "" {
			return Local{}, true
		}
		return NewPingFederate(cfg.PingFederate, httpClient), false
	default:
		return Local{}, true
	}
}

// Local keeps everything in the local database and never fails.
type Local struct{}

func (Local) Name() string { return "LocalAuth" }

func (Local) CreateUser(ctx context.Context, u NewUser) (*User, error) {
	return &User{Username: u.Username, Email: u.Email}, nil
}

func (Local) GetUser(ctx context.Context, username string) (*User, error) {
	return nil, nil
}

func (Local) InitiateAuthentication(ctx context.Context, username string) (*Flow, error) {
	return &Flow{}, nil
}

func (Local) CompleteAuthentication(ctx context.Context, flowID string, patternValid bool) (*FlowResult, error) {
	return &FlowResult{FlowID: flowID, Status: flowStatus(patternValid), PatternVerified: patternValid}, nil
}

func (Local) StorePattern(ctx context.Context, username, encoded string) error {
	return nil
}

func (Local) GetPattern(ctx context.Context, username string) (string, error) {
	return "", nil
}
