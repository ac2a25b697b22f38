// Package api provides HTTP routing and handlers for the status API.
package api

import (
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stay-lock-sync/backend/internal/api/handlers"
	"github.com/stay-lock-sync/backend/internal/api/middleware"
	"github.com/stay-lock-sync/backend/internal/lock"
	"github.com/stay-lock-sync/backend/internal/runner"
	"github.com/stay-lock-sync/backend/internal/storage"
	"github.com/stay-lock-sync/backend/internal/websocket"
)

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(
	db *storage.DB,
	runs *storage.RunRepository,
	hub *websocket.Hub,
	client *lock.Client,
	scheduler *runner.Scheduler,
	units int,
	logger *zap.SugaredLogger,
) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(logger))
	r.Use(middleware.ErrorRecovery(logger))

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(db)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(client, scheduler, hub, units)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(hub, logger)).Methods("GET")

	// Run history and manual trigger
	api.HandleFunc("/runs", handlers.ListRuns(runs)).Methods("GET")
	api.HandleFunc("/runs/latest", handlers.LatestRun(runs)).Methods("GET")
	api.HandleFunc("/sync", handlers.TriggerSync(scheduler)).Methods("POST")

	return r
}
