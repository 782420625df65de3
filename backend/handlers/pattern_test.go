package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func registerUser(t *testing.T, e *testEnv, username string) (userID, token string) {
	t.Helper()
	rec, body := e.do(t, "POST", "/api/auth/register", map[string]string{
		"username": username, "email": username + "@example.com", "password": "Secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: got %d %s", username, rec.Code, rec.Body)
	}
	return body["userId"].(string), body["token"].(string)
}

func TestSetupPattern_SetupLinkSingleUse(t *testing.T) {
	env := setupTestEnv(t)
	userID, _ := registerUser(t, env, "erin")

	user, err := env.store.UserByID(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	link, err := env.svc.IssueSetupToken(user)
	if err != nil {
		t.Fatal(err)
	}

	rec, body := env.do(t, "GET", "/api/auth/pattern/setup?token="+link, nil)
	if rec.Code != http.StatusOK || body["username"] != "erin" {
		t.Fatalf("options with setup link: got %d %v", rec.Code, body)
	}

	req := map[string]any{"token": link, "pattern": []string{"phrase-1", "image-1", "icon-1"}}
	if rec, _ := env.do(t, "POST", "/api/auth/pattern/setup", req); rec.Code != http.StatusOK {
		t.Fatalf("first use: got %d %s", rec.Code, rec.Body)
	}

	rec, body = env.do(t, "POST", "/api/auth/pattern/setup", req)
	if rec.Code != http.StatusUnauthorized || body["error"] != "This setup link has already been used" {
		t.Errorf("second use: got %d %v", rec.Code, body)
	}

	// A setup link never stands in for a session token.
	rec, _ = env.do(t, "POST", "/api/auth/pattern/verify", map[string]any{
		"userId": userID, "token": link, "pattern": []string{"phrase-1", "image-1", "icon-1"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("verify with setup link: expected 401, got %d", rec.Code)
	}
}

func TestSetupPattern_Rejections(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := registerUser(t, env, "fred")
	_, otherToken := registerUser(t, env, "gina")

	tests := []struct {
		name    string
		req     map[string]any
		status  int
		message string
	}{
		{"two symbols", map[string]any{"userId": userID, "token": token, "pattern": []string{"phrase-0", "image-0"}}, http.StatusBadRequest, ""},
		{"unknown symbol", map[string]any{"userId": userID, "token": token, "pattern": []string{"phrase-0", "image-0", "icon-99"}}, http.StatusBadRequest, ""},
		{"bad token", map[string]any{"userId": userID, "token": "garbage", "pattern": []string{"phrase-0", "image-0", "icon-0"}}, http.StatusUnauthorized, "Invalid or expired token"},
		{"someone else's token", map[string]any{"userId": userID, "token": otherToken, "pattern": []string{"phrase-0", "image-0", "icon-0"}}, http.StatusUnauthorized, "Invalid user session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, "POST", "/api/auth/pattern/setup", tt.req)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body)
			}
			if tt.message != "" && body["error"] != tt.message {
				t.Errorf("expected %q, got %v", tt.message, body["error"])
			}
		})
	}
}

func TestSetupPattern_RejectsWhenAlreadySet(t *testing.T) {
	env := setupTestEnv(t)
	userID, regToken := registerUser(t, env, "nora")
	good := []string{"phrase-1", "image-2", "icon-3"}
	if rec, _ := env.do(t, "POST", "/api/auth/pattern/setup", map[string]any{"userId": userID, "token": regToken, "pattern": good}); rec.Code != http.StatusOK {
		t.Fatalf("setup: got %d", rec.Code)
	}

	_, body := env.do(t, "POST", "/api/auth/login", map[string]string{"username": "nora", "password": "Secret1"})
	loginToken := body["token"].(string)

	user, _ := env.store.UserByID(context.Background(), userID)
	link, _ := env.svc.IssueSetupToken(user)

	chosen := []string{"phrase-5", "image-5", "icon-5"}
	for name, token := range map[string]string{"login": loginToken, "registration": regToken, "setup link": link} {
		rec, body := env.do(t, "POST", "/api/auth/pattern/setup", map[string]any{"userId": userID, "token": token, "pattern": chosen})
		if rec.Code != http.StatusConflict {
			t.Errorf("%s token: expected 409, got %d %v", name, rec.Code, body)
		}
	}

	rec, _ := env.do(t, "POST", "/api/auth/pattern/verify", map[string]any{"userId": userID, "token": loginToken, "pattern": chosen})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refused pattern must not verify, got %d", rec.Code)
	}
	rec, _ = env.do(t, "POST", "/api/auth/pattern/verify", map[string]any{"userId": userID, "token": loginToken, "pattern": good})
	if rec.Code != http.StatusOK {
		t.Errorf("original pattern must still verify, got %d", rec.Code)
	}
}

func TestVerifyPattern_LocksAccount(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := registerUser(t, env, "hank")
	good := []string{"phrase-2", "image-2", "icon-2"}
	env.do(t, "POST", "/api/auth/pattern/setup", map[string]any{"userId": userID, "token": token, "pattern": good})

	_, body := env.do(t, "POST", "/api/auth/login", map[string]string{"username": "hank", "password": "Secret1"})
	token = body["token"].(string)

	bad := []string{"phrase-0", "image-0", "icon-0"}
	for want := 4; want >= 0; want-- {
		rec, body := env.do(t, "POST", "/api/auth/pattern/verify", map[string]any{"userId": userID, "token": token, "pattern": bad})
		if rec.Code != http.StatusUnauthorized || body["attemptsLeft"] != float64(want) {
			t.Fatalf("expected 401 with %d attempts left, got %d %v", want, rec.Code, body)
		}
	}

	rec, body := env.do(t, "POST", "/api/auth/pattern/verify", map[string]any{"userId": userID, "token": token, "pattern": good})
	if rec.Code != http.StatusForbidden || body["error"] != "Account temporarily locked" {
		t.Errorf("expected lockout, got %d %v", rec.Code, body)
	}
}

func TestVerifyPattern_MissingFields(t *testing.T) {
	env := setupTestEnv(t)
	rec, body := env.do(t, "POST", "/api/auth/pattern/verify", map[string]any{"pattern": []string{"phrase-0"}})
	if rec.Code != http.StatusBadRequest || body["error"] != "Missing required fields" {
		t.Errorf("expected 400, got %d %v", rec.Code, body)
	}
}

func TestResetPattern(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := registerUser(t, env, "iris")
	env.do(t, "POST", "/api/auth/pattern/setup", map[string]any{
		"userId": userID, "token": token, "pattern": []string{"phrase-0", "image-0", "icon-0"},
	})

	rec, body := env.do(t, "POST", "/api/auth/pattern/reset", map[string]string{
		"username": "iris", "email": "iris@example.com", "currentPassword": "nope",
	})
	if rec.Code != http.StatusUnauthorized || body["error"] != "Invalid credentials" {
		t.Errorf("wrong password: got %d %v", rec.Code, body)
	}

	rec, _ = env.do(t, "POST", "/api/auth/pattern/reset", map[string]string{
		"username": "iris", "email": "someone@example.com", "currentPassword": "Secret1",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("email mismatch: expected 404, got %d", rec.Code)
	}

	rec, body = env.do(t, "POST", "/api/auth/pattern/reset", map[string]string{
		"username": "iris", "email": "iris@example.com", "currentPassword": "Secret1",
	})
	if rec.Code != http.StatusOK || body["requiresPatternSetup"] != true {
		t.Fatalf("reset: got %d %v", rec.Code, body)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), sessionName+"=") {
		t.Error("reset should refresh the session cookie")
	}

	_, body = env.do(t, "POST", "/api/auth/login", map[string]string{"username": "iris", "password": "Secret1"})
	if body["requiresPatternSetup"] != true {
		t.Errorf("login after reset should require setup, got %v", body)
	}
}
