package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/auth"
	"github.com/PhilHem/go-pattern-auth/backend/models"
)

func TestRequireAPIKey(t *testing.T) {
	handler := RequireAPIKey("cron-key", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		url    string
		header string
		want   int
	}{
		{"query key", "/api/cron/pattern-reminders?apiKey=cron-key", "", http.StatusOK},
		{"header key", "/admin/api/logs", "cron-key", http.StatusOK},
		{"wrong key", "/api/cron/pattern-reminders?apiKey=nope", "", http.StatusUnauthorized},
		{"missing key", "/api/cron/pattern-reminders", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.url, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRequireAPIKey_EmptyKeyDisables(t *testing.T) {
	handler := RequireAPIKey("", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest("GET", "/api/cron/pattern-reminders?apiKey=", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 when no key is configured, got %d", rec.Code)
	}
}

func TestRequireAuthenticated(t *testing.T) {
	tokens := auth.NewTokens("middleware-test-secret-32-bytes-long", time.Hour, time.Hour)
	user := &models.User{ID: "u-1", Username: "alice", Email: "alice@example.com", IsPatternSet: true}
	partial, _ := tokens.Generate(user, 0)
	full, _ := tokens.GenerateAuthenticated(user)

	var seen *auth.Claims
	handler := RequireAuthenticated(tokens, BearerToken, func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	for _, tc := range []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"password only", partial, http.StatusUnauthorized},
		{"authenticated", full, http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/auth/me", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
	if seen == nil || seen.ID != "u-1" {
		t.Errorf("expected claims on the context, got %+v", seen)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer abc.def")
	if got := BearerToken(req); got != "abc.def" {
		t.Errorf("expected abc.def, got %q", got)
	}
	req.Header.Set("Authorization", "Basic xyz")
	if got := BearerToken(req); got != "" {
		t.Errorf("expected no token, got %q", got)
	}
}
