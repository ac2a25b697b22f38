// Package runner drives one reconciliation pass across all configured units
// and aggregates the per-unit results into the run summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stay-lock-sync/backend/internal/booking"
	"github.com/stay-lock-sync/backend/internal/config"
	"github.com/stay-lock-sync/backend/internal/lock"
)

// UnitResult is the outcome of reconciling one unit.
type UnitResult struct {
	UnitID  string
	Name    string
	Action  lock.Action
	Message string
	Err     error
}

// Line renders the unit's summary line.
func (r UnitResult) Line() string {
	if r.Err != nil {
		return fmt.Sprintf("[ERR] %s: %v", r.Name, r.Err)
	}
	return r.Message
}

// RunOutcome is the aggregated result of one full pass. Constructed fresh
// per run, never persisted by this package.
type RunOutcome struct {
	StartedAt  time.Time
	FinishedAt time.Time
	HadError   bool
	Units      []UnitResult
}

// Lines returns the ordered summary lines, one per unit.
func (o RunOutcome) Lines() []string {
	lines := make([]string, 0, len(o.Units))
	for _, u := range o.Units {
		lines = append(lines, u.Line())
	}
	return lines
}

// Runner iterates the configured units in order, reconciling each one.
type Runner struct {
	units      []config.Unit
	source     booking.Source
	resolver   booking.Resolver
	reconciler *lock.Reconciler

	arrivalCol   string
	departureCol string
	zone         *time.Location
	logger       *zap.SugaredLogger

	// now is swapped out in tests to pin "today".
	now func() time.Time
}

// New creates a runner over the configured units.
func New(cfg *config.Config, source booking.Source, reconciler *lock.Reconciler, logger *zap.SugaredLogger) *Runner {
	return &Runner{
		units:  cfg.Units,
		source: source,
		resolver: booking.Resolver{
			Checkin:  cfg.Checkin,
			Checkout: cfg.Checkout,
			Zone:     cfg.Zone,
			Mode:     cfg.ResolutionMode,
		},
		reconciler:   reconciler,
		arrivalCol:   cfg.ArrivalColumn,
		departureCol: cfg.DepartureColumn,
		zone:         cfg.Zone,
		logger:       logger,
		now:          time.Now,
	}
}

// RunAll reconciles every unit in configured order. A unit's failure is
// converted into its summary line and never aborts the batch; RunAll itself
// never fails. This isolation is the one property the whole design hangs
// on: a broken sheet for one apartment must not leave another apartment's
// lock stale.
func (r *Runner) RunAll(ctx context.Context) RunOutcome {
	outcome := RunOutcome{StartedAt: r.now()}
	today := r.now().In(r.zone)

	for _, unit := range r.units {
		result := r.runUnit(ctx, unit, today)
		if result.Err != nil {
			outcome.HadError = true
			r.logger.Errorf("%s", result.Line())
		} else {
			r.logger.Infof("%s", result.Line())
		}
		outcome.Units = append(outcome.Units, result)
	}

	outcome.FinishedAt = r.now()
	return outcome
}

// runUnit performs fetch, resolve, and reconcile for a single unit,
// classifying any failure.
func (r *Runner) runUnit(ctx context.Context, unit config.Unit, today time.Time) UnitResult {
	result := UnitResult{UnitID: unit.ID, Name: unit.Name}

	if err := unit.Validate(); err != nil {
		result.Err = &UnitError{Kind: KindConfiguration, Err: err}
		return result
	}

	rows, err := r.source.Fetch(ctx, unit.DriveFileID)
	if err != nil {
		result.Err = &UnitError{Kind: KindSource, Err: err}
		return result
	}

	bookings, err := booking.ParseTable(rows, r.arrivalCol, r.departureCol, r.zone)
	if err != nil {
		result.Err = &UnitError{Kind: KindSource, Err: err}
		return result
	}

	desired := r.resolver.Resolve(bookings, today)

	outcome, err := r.reconciler.Reconcile(ctx, unit, desired)
	if err != nil {
		kind := KindBackend
		if errors.Is(err, lock.ErrMissingPIN) {
			kind = KindConfiguration
		}
		result.Err = &UnitError{Kind: kind, Err: err}
		return result
	}

	result.Action = outcome.Action
	result.Message = outcome.Message
	if r.resolver.Mode == config.ModeArrivalDay && r.resolver.Turnover(bookings, today) {
		result.Message += " (turnover day)"
	}

	return result
}
