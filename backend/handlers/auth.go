package handlers

import (
	"log/slog"
	"net/http"

	"github.com/PhilHem/go-pattern-auth/backend/auth"
	"github.com/PhilHem/go-pattern-auth/backend/middleware"
)

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.svc.Register(r.Context(), req)
	if err != nil {
		fail(w, r, err, "Failed to register user")
		return
	}
	a.rememberToken(w, r, res.Token)
	writeJSON(w, http.StatusCreated, res)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		fail(w, r, err, "Failed to process login")
		return
	}
	a.rememberToken(w, r, res.Token)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := a.sessions.Get(r, sessionName)
	delete(session.Values, sessionTokenKey)
	session.Options.MaxAge = -1
	session.Save(r, w)

	slog.Info("user logged out", "source", "auth")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Me returns the profile behind a fully authenticated token.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	p, err := a.svc.Profile(r.Context(), claims.ID)
	if err != nil {
		fail(w, r, err, "Failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": p})
}
