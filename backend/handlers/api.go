// Package handlers exposes the pattern authentication flows as a JSON API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/auth"
	"github.com/PhilHem/go-pattern-auth/backend/config"
	"github.com/PhilHem/go-pattern-auth/backend/middleware"
	"github.com/PhilHem/go-pattern-auth/backend/notify"

	"github.com/gorilla/sessions"
	"gorm.io/gorm"
)

const (
	sessionName     = "session"
	sessionTokenKey = "token"
	maxBodyBytes    = 1 << 20
)

type API struct {
	svc       *auth.Service
	sessions  sessions.Store
	reminders *notify.Reminders
	db        *gorm.DB
	maxDBSize int64
}

func New(svc *auth.Service, store sessions.Store, reminders *notify.Reminders, db *gorm.DB, maxDBSize int64) *API {
	return &API{svc: svc, sessions: store, reminders: reminders, db: db, maxDBSize: maxDBSize}
}

// NewSessionStore builds the cookie store that carries the latest token.
func NewSessionStore(secret string, timeout time.Duration, secure bool) (*sessions.CookieStore, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required (set SESSION_SECRET)")
	}
	if len(secret) < config.MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d characters", config.MinSecretLength)
	}
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(timeout.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

// Routes registers every endpoint. limiter guards the credential endpoints;
// apiKey guards cron and log admin.
func (a *API) Routes(limiter *middleware.RateLimiter, apiKey string) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check (unauthenticated, for load balancers)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/auth/register", limiter.LimitFunc(a.Register))
	mux.HandleFunc("POST /api/auth/login", limiter.LimitFunc(a.Login))
	mux.HandleFunc("POST /api/auth/logout", a.Logout)
	mux.HandleFunc("GET /api/auth/me", middleware.RequireAuthenticated(a.svc.Tokens(), a.sessionToken, a.Me))

	mux.HandleFunc("GET /api/auth/pattern/setup", a.PatternOptions)
	mux.HandleFunc("POST /api/auth/pattern/setup", limiter.LimitFunc(a.SetupPattern))
	mux.HandleFunc("POST /api/auth/pattern/verify", limiter.LimitFunc(a.VerifyPattern))
	mux.HandleFunc("POST /api/auth/pattern/reset", limiter.LimitFunc(a.ResetPattern))

	mux.HandleFunc("GET /api/identity-provider", a.IdentityProvider)
	mux.HandleFunc("GET /api/cron/pattern-reminders", middleware.RequireAPIKey(apiKey, a.PatternReminders))

	mux.HandleFunc("GET /admin/api/logs", middleware.RequireAPIKey(apiKey, a.GetLogs))
	mux.HandleFunc("GET /admin/api/logs/sources", middleware.RequireAPIKey(apiKey, a.GetLogSources))
	mux.HandleFunc("GET /admin/api/logs/timeline", middleware.RequireAPIKey(apiKey, a.GetLogTimeline))
	mux.HandleFunc("GET /admin/api/db/stats", middleware.RequireAPIKey(apiKey, a.GetDBStats))
	mux.HandleFunc("DELETE /admin/api/logs", middleware.RequireAPIKey(apiKey, a.DeleteLogs))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// fail maps an auth error to its status. Anything unexpected is logged and
// answered with the route's generic message.
func fail(w http.ResponseWriter, r *http.Request, err error, generic string) {
	var (
		invalid  *auth.ValidationError
		locked   *auth.LockedError
		mismatch *auth.PatternMismatchError
	)
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Message)
	case errors.As(err, &locked):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":         "Account temporarily locked",
			"remainingTime": locked.RemainingMinutes,
		})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":        "Invalid pattern",
			"attemptsLeft": mismatch.AttemptsLeft,
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, auth.ErrSessionMismatch):
		writeError(w, http.StatusUnauthorized, "Invalid user session")
	case errors.Is(err, auth.ErrTokenAlreadyUsed):
		writeError(w, http.StatusUnauthorized, "This setup link has already been used")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, "User already exists")
	case errors.Is(err, auth.ErrPatternAlreadySet):
		writeError(w, http.StatusConflict, "Pattern already set. Reset it to choose a new one")
	default:
		slog.Error(generic, "source", "http", "path", r.URL.Path, "error", err.Error())
		writeError(w, http.StatusInternalServerError, generic)
	}
}

// sessionToken finds a token outside the request payload: a bearer header
// first, then the session cookie.
func (a *API) sessionToken(r *http.Request) string {
	if t := middleware.BearerToken(r); t != "" {
		return t
	}
	session, err := a.sessions.Get(r, sessionName)
	if err != nil {
		return ""
	}
	t, _ := session.Values[sessionTokenKey].(string)
	return t
}

// tokenOr prefers an explicit token from the body or query.
func (a *API) tokenOr(explicit string, r *http.Request) string {
	if explicit != "" {
		return explicit
	}
	return a.sessionToken(r)
}

func (a *API) rememberToken(w http.ResponseWriter, r *http.Request, token string) {
	session, _ := a.sessions.Get(r, sessionName)
	session.Values[sessionTokenKey] = token
	if err := session.Save(r, w); err != nil {
		slog.Warn("failed to save session", "source", "http", "error", err.Error())
	}
}
