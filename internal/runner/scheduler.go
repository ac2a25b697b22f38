package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stay-lock-sync/backend/internal/config"
	"github.com/stay-lock-sync/backend/internal/report"
	"github.com/stay-lock-sync/backend/internal/storage"
	"github.com/stay-lock-sync/backend/internal/websocket"
)

// Scheduler wakes once per day at the configured local time, performs a
// full reconciliation pass, records it, mails the report, and goes back to
// sleep. Manual triggers from the API share the same single-flight pass.
type Scheduler struct {
	cron        *cron.Cron
	runner      *Runner
	mailer      *report.Mailer
	runs        *storage.RunRepository
	broadcaster *websocket.EventBroadcaster
	runTime     config.Clock
	zone        *time.Location
	prefix      string
	logger      *zap.SugaredLogger

	// passMu serializes passes: a manual trigger must never overlap the
	// scheduled daily pass against the same locks.
	passMu sync.Mutex

	mu      sync.RWMutex
	entryID cron.EntryID
	lastRun *time.Time
}

// NewScheduler creates the daily scheduler. runs and broadcaster may be nil
// (run-once mode wires neither).
func NewScheduler(
	r *Runner,
	mailer *report.Mailer,
	runs *storage.RunRepository,
	broadcaster *websocket.EventBroadcaster,
	cfg *config.Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithLocation(cfg.Zone)),
		runner:      r,
		mailer:      mailer,
		runs:        runs,
		broadcaster: broadcaster,
		runTime:     cfg.RunTime,
		zone:        cfg.Zone,
		prefix:      cfg.Mail.SubjectPrefix,
		logger:      logger,
	}
}

// Start schedules the daily pass and starts the cron loop.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("%d %d * * *", s.runTime.Minute, s.runTime.Hour)
	entryID, err := s.cron.AddFunc(spec, func() {
		s.RunPass(context.Background())
	})
	if err != nil {
		return fmt.Errorf("scheduling daily run: %w", err)
	}

	s.mu.Lock()
	s.entryID = entryID
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Infof("Scheduler started, daily run at %s (%s)", s.runTime, s.zone)
	return nil
}

// Stop shuts the scheduler down, waiting for a running pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// TriggerRun starts a pass in the background. Used by the API.
func (s *Scheduler) TriggerRun() {
	go s.RunPass(context.Background())
}

// RunPass performs one full reconciliation pass: run all units, persist the
// run, broadcast progress, and deliver the report. Report or persistence
// failures are logged and never affect the pass outcome.
func (s *Scheduler) RunPass(ctx context.Context) RunOutcome {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if s.broadcaster != nil {
		s.broadcaster.RunStarted(websocket.RunStartedPayload{
			Units:     len(s.runner.units),
			StartedAt: time.Now().UTC(),
		})
	}

	outcome := s.runner.RunAll(ctx)

	failures := 0
	for _, unit := range outcome.Units {
		if unit.Err != nil {
			failures++
		}
		if s.broadcaster != nil {
			s.broadcaster.UnitReconciled(websocket.UnitReconciledPayload{
				UnitID:      unit.UnitID,
				DisplayName: unit.Name,
				Action:      string(unit.Action),
				Line:        unit.Line(),
				Failed:      unit.Err != nil,
			})
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.RunCompleted(websocket.RunCompletedPayload{
			HadError:   outcome.HadError,
			Units:      len(outcome.Units),
			Failures:   failures,
			FinishedAt: outcome.FinishedAt.UTC(),
		})
	}

	s.record(ctx, outcome)
	s.deliver(outcome)

	finished := outcome.FinishedAt
	s.mu.Lock()
	s.lastRun = &finished
	s.mu.Unlock()

	return outcome
}

// record persists the pass to the run store.
func (s *Scheduler) record(ctx context.Context, outcome RunOutcome) {
	if s.runs == nil {
		return
	}

	run := storage.Run{
		StartedAt:  outcome.StartedAt,
		FinishedAt: outcome.FinishedAt,
		HadError:   outcome.HadError,
	}
	for _, unit := range outcome.Units {
		stored := storage.RunUnit{
			UnitID:      unit.UnitID,
			DisplayName: unit.Name,
			Action:      string(unit.Action),
			Line:        unit.Line(),
		}
		if unit.Err != nil {
			msg := unit.Err.Error()
			stored.Error = &msg
		}
		run.Units = append(run.Units, stored)
	}

	if _, err := s.runs.Record(ctx, run); err != nil {
		s.logger.Errorf("Failed to record run: %v", err)
	}
}

// deliver mails the report. Failures are logged only: notification loss
// never marks the run failed.
func (s *Scheduler) deliver(outcome RunOutcome) {
	subject := report.Subject(s.prefix, outcome.HadError, time.Now().In(s.zone))
	body := report.Body(outcome.Lines())

	if err := s.mailer.Send(subject, body); err != nil {
		s.logger.Errorf("Report delivery failed: %v", err)
	}
}

// LastRun returns when the most recent pass finished, if any.
func (s *Scheduler) LastRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// NextRun returns the next scheduled pass time, if the cron loop runs.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.RLock()
	entryID := s.entryID
	s.mu.RUnlock()

	entry := s.cron.Entry(entryID)
	if entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}
