package handlers

import "net/http"

// AdminStats merges queue counts with the live admission snapshot.
func (a *App) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Jobs.Stats(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, stats)
}
