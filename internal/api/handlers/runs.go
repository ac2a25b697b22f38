package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/stay-lock-sync/backend/internal/api/middleware"
	"github.com/stay-lock-sync/backend/internal/runner"
	"github.com/stay-lock-sync/backend/internal/storage"
)

// ListRuns returns a handler that lists recent runs, newest first. The
// optional limit query parameter caps the result (default 20).
func ListRuns(runs *storage.RunRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		result, err := runs.ListRecent(r.Context(), limit)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to list runs")
			return
		}
		if result == nil {
			result = []storage.Run{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// LatestRun returns a handler that reports the most recent run including
// its per-unit lines.
func LatestRun(runs *storage.RunRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := runs.Latest(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to read latest run")
			return
		}
		if run == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "No runs recorded yet")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	}
}

// TriggerSync returns a handler that starts a reconciliation pass in the
// background and returns immediately.
func TriggerSync(scheduler *runner.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduler.TriggerRun()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "started"})
	}
}
