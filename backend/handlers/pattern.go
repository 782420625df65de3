package handlers

import (
	"net/http"

	"github.com/PhilHem/go-pattern-auth/backend/auth"
)

func (a *API) PatternOptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := a.svc.PatternOptions(r.Context(), a.tokenOr(q.Get("token"), r), q.Get("userId"))
	if err != nil {
		fail(w, r, err, "Failed to fetch pattern setup options")
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (a *API) SetupPattern(w http.ResponseWriter, r *http.Request) {
	var req auth.PatternInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Token = a.tokenOr(req.Token, r)
	res, err := a.svc.SetupPattern(r.Context(), req)
	if err != nil {
		fail(w, r, err, "Failed to set up pattern")
		return
	}
	a.rememberToken(w, r, res.Token)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) VerifyPattern(w http.ResponseWriter, r *http.Request) {
	var req auth.PatternInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Token = a.tokenOr(req.Token, r)
	res, err := a.svc.VerifyPattern(r.Context(), req)
	if err != nil {
		fail(w, r, err, "Failed to verify pattern")
		return
	}
	a.rememberToken(w, r, res.Token)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) ResetPattern(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetInput
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.svc.ResetPattern(r.Context(), req)
	if err != nil {
		fail(w, r, err, "Failed to reset pattern")
		return
	}
	a.rememberToken(w, r, res.Token)
	writeJSON(w, http.StatusOK, res)
}
