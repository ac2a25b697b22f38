// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stay-lock-sync/backend/internal/lock"
	"github.com/stay-lock-sync/backend/internal/runner"
	"github.com/stay-lock-sync/backend/internal/storage"
	"github.com/stay-lock-sync/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.Ping() == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		response := HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	BackendReachable bool       `json:"backend_reachable"`
	Units            int        `json:"units"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	NextRunAt        *time.Time `json:"next_run_at,omitempty"`
	ConnectedClients int        `json:"connected_clients"`
}

// Status returns a handler that reports backend reachability and run timing.
func Status(client *lock.Client, scheduler *runner.Scheduler, hub *websocket.Hub, units int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{
			BackendReachable: client.Reachable(r.Context()),
			Units:            units,
			LastRunAt:        scheduler.LastRun(),
			NextRunAt:        scheduler.NextRun(),
			ConnectedClients: hub.ClientCount(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
