package handlers

import "net/http"

// PatternReminders emails a setup link to every user without a pattern.
func (a *API) PatternReminders(w http.ResponseWriter, r *http.Request) {
	res, err := a.reminders.Run(r.Context())
	if err != nil {
		fail(w, r, err, "Failed to process pattern notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Pattern setup notifications sent",
		"totalUsers":   res.TotalUsers,
		"successCount": res.SuccessCount,
		"failureCount": res.FailureCount,
	})
}
