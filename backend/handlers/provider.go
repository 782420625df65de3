package handlers

import "net/http"

// IdentityProvider reports the configured provider and, for a caller with a
// token, what the provider holds for them.
func (a *API) IdentityProvider(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.ProviderStatus(r.Context(), a.tokenOr(r.URL.Query().Get("token"), r)))
}
