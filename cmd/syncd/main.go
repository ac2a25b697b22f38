// Package main is the entry point for the stay lock sync daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stay-lock-sync/backend/internal/api"
	"github.com/stay-lock-sync/backend/internal/booking"
	"github.com/stay-lock-sync/backend/internal/config"
	"github.com/stay-lock-sync/backend/internal/lock"
	"github.com/stay-lock-sync/backend/internal/logging"
	"github.com/stay-lock-sync/backend/internal/report"
	"github.com/stay-lock-sync/backend/internal/runner"
	"github.com/stay-lock-sync/backend/internal/storage"
	"github.com/stay-lock-sync/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	configPath := flag.String("config", "/config/config.yaml", "Path to the YAML configuration file")
	addr := flag.String("addr", ":8090", "HTTP server address")
	dataDir := flag.String("data", "/data", "Data directory for the SQLite run history")
	once := flag.Bool("once", false, "Run a single reconciliation pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	base, logPath, err := logging.New(cfg.LogDir, cfg.Zone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer base.Sync()
	logger := base.Sugar()

	logging.Cleanup(cfg.LogDir, cfg.LogRetentionDays, cfg.Zone)

	logger.Infof("Starting stay lock sync (version: %s)", version)
	logger.Infof("Logging to %s", logPath)
	logger.Infof("Managing %d units, daily run at %s (%s)", len(cfg.Units), cfg.RunTime, cfg.Zone)

	source := booking.NewDriveSource(booking.DriveSourceConfig{
		TokenFile: cfg.Drive.TokenFile,
		Timeout:   cfg.Drive.Timeout,
	}, logger)

	client := lock.NewClient(cfg.Nuki, logger)
	reconciler := lock.NewReconciler(client, cfg.Zone, cfg.ForceSync, logger)
	passRunner := runner.New(cfg, source, reconciler, logger)
	mailer := report.NewMailer(cfg.Mail)

	if *once {
		scheduler := runner.NewScheduler(passRunner, mailer, nil, nil, cfg, logger)
		outcome := scheduler.RunPass(context.Background())
		if outcome.HadError {
			logger.Warn("Run finished with errors, see the report above")
		}
		// Per-unit failures are reported, never fatal.
		os.Exit(0)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("Failed to create data directory %q: %v", *dataDir, err)
	}
	db, err := storage.Open(filepath.Join(*dataDir, "stay-lock-sync.db"))
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations complete")

	hub := websocket.NewHub(logger)
	go hub.Run()
	broadcaster := websocket.NewEventBroadcaster(hub, logger)

	runs := storage.NewRunRepository(db)
	scheduler := runner.NewScheduler(passRunner, mailer, runs, broadcaster, cfg, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	router := api.NewRouter(db, runs, hub, client, scheduler, len(cfg.Units), logger)

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server listening on %s", *addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server shutdown error: %v", err)
	}

	logger.Info("Server stopped")
}
