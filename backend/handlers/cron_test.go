package handlers

import (
	"net/http"
	"strings"
	"testing"
)

func TestPatternReminders(t *testing.T) {
	env := setupTestEnv(t)
	registerUser(t, env, "jack")
	registerUser(t, env, "kate")
	userID, token := registerUser(t, env, "liam")
	env.do(t, "POST", "/api/auth/pattern/setup", map[string]any{
		"userId": userID, "token": token, "pattern": []string{"phrase-0", "image-0", "icon-0"},
	})

	rec, body := env.do(t, "GET", "/api/cron/pattern-reminders?apiKey="+testAPIKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if body["totalUsers"] != float64(2) || body["successCount"] != float64(2) || body["failureCount"] != float64(0) {
		t.Errorf("unexpected counts %v", body)
	}
	if len(env.sender.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(env.sender.sent))
	}
	for _, m := range env.sender.sent {
		if !strings.Contains(m.Text, "http://localhost:8080/auth/pattern-setup?token=") {
			t.Errorf("email to %s lacks a setup link", m.To)
		}
	}
}

func TestIdentityProvider_Local(t *testing.T) {
	env := setupTestEnv(t)
	_, token := registerUser(t, env, "mona")

	rec, body := env.do(t, "GET", "/api/identity-provider", nil, "Authorization", "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["provider"] != "LocalAuth" || body["localAuthEnabled"] != true {
		t.Errorf("unexpected provider info %v", body)
	}
	if _, ok := body["user"]; ok {
		t.Error("local auth reports no provider user")
	}
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	rec, body := env.do(t, "GET", "/health", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response %d %v", rec.Code, body)
	}
}
