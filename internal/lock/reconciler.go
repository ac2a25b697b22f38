package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stay-lock-sync/backend/internal/booking"
	"github.com/stay-lock-sync/backend/internal/config"
)

// WindowTolerance is the per-bound slack under which a configured window
// counts as equal to the desired one. The backend rounds timestamps, and
// without this slack every pass would rewrite an unchanged window.
const WindowTolerance = 60 * time.Second

// ErrMissingPIN is returned when a unit's guest code does not exist on the
// lock and no provisioning PIN is configured to create it.
var ErrMissingPIN = errors.New("guest code does not exist and no pin is configured")

// Action is the corrective call a reconcile pass decided on.
type Action string

const (
	// ActionNone means the lock already matched the desired state.
	ActionNone Action = "none"
	// ActionUpdated means the access window was (re)written.
	ActionUpdated Action = "updated"
	// ActionCleared means the access window was removed.
	ActionCleared Action = "cleared"
)

// Outcome describes what one reconcile pass did for one unit.
type Outcome struct {
	Action  Action
	Created bool
	Window  *booking.Window
	Message string
}

// Reconciler converges a lock's guest-code window onto the desired stay
// window, issuing the minimal corrective call. Running it twice in a row
// with unchanged inputs issues zero writes on the second pass.
type Reconciler struct {
	store     AuthStore
	reader    *Reader
	zone      *time.Location
	tolerance time.Duration
	forceSync bool
	logger    *zap.SugaredLogger
}

// NewReconciler creates a reconciler. When forceSync is set, a best-effort
// backend sync is triggered after every write.
func NewReconciler(store AuthStore, zone *time.Location, forceSync bool, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		store:     store,
		reader:    NewReader(store),
		zone:      zone,
		tolerance: WindowTolerance,
		forceSync: forceSync,
		logger:    logger,
	}
}

// Reconcile compares the desired window against the lock's current state and
// converges them. desired == nil means no stay applies and the code must be
// disabled. Exactly one human-readable result line is produced per call.
func (r *Reconciler) Reconcile(ctx context.Context, unit config.Unit, desired *booking.Window) (Outcome, error) {
	auth, err := r.ensure(ctx, unit)
	if err != nil {
		return Outcome{}, err
	}
	created := auth == nil

	// Re-read after a create, and never trust a previously fetched entry:
	// the backend may have been changed out-of-band since the list call.
	auth, err = r.reader.Current(ctx, unit.SmartlockID, unit.AuthName)
	if err != nil {
		return Outcome{}, err
	}
	if auth == nil {
		return Outcome{}, fmt.Errorf("guest code %q not found on lock %d after create", unit.AuthName, unit.SmartlockID)
	}
	if auth.ID == "" {
		return Outcome{}, fmt.Errorf("guest code %q on lock %d has no authorization id", unit.AuthName, unit.SmartlockID)
	}

	current := auth.Window()

	if desired == nil {
		return r.disable(ctx, unit, auth, current, created)
	}
	return r.apply(ctx, unit, auth, current, desired, created)
}

// ensure makes sure the authorization exists. Returns the entry found, or
// nil when it had to be created.
func (r *Reconciler) ensure(ctx context.Context, unit config.Unit) (*Authorization, error) {
	auth, err := r.reader.Current(ctx, unit.SmartlockID, unit.AuthName)
	if err != nil {
		return nil, err
	}
	if auth != nil {
		return auth, nil
	}

	if unit.PIN == nil {
		return nil, fmt.Errorf("%w: code %q on lock %d", ErrMissingPIN, unit.AuthName, unit.SmartlockID)
	}

	err = r.store.Create(ctx, unit.SmartlockID, unit.AuthName, *unit.PIN, AllWeekdays)
	if err != nil && !errors.Is(err, ErrConflict) {
		return nil, fmt.Errorf("creating guest code %q: %w", unit.AuthName, err)
	}

	r.logger.Infof("Created guest code %q on lock %d", unit.AuthName, unit.SmartlockID)
	return nil, nil
}

// disable clears the window when no stay applies.
func (r *Reconciler) disable(ctx context.Context, unit config.Unit, auth *Authorization, current *booking.Window, created bool) (Outcome, error) {
	if current == nil {
		msg := fmt.Sprintf("[OK] %s: no stay - code %q was already disabled", unit.Name, unit.AuthName)
		return Outcome{Action: ActionNone, Created: created, Message: withCreated(msg, created)}, nil
	}

	if err := r.store.SetWindow(ctx, unit.SmartlockID, auth.ID, nil, nil); err != nil {
		return Outcome{}, fmt.Errorf("clearing window for code %q: %w", unit.AuthName, err)
	}
	r.sync(ctx, unit)

	msg := fmt.Sprintf("[OK] %s: no stay - code %q disabled", unit.Name, unit.AuthName)
	return Outcome{Action: ActionCleared, Created: created, Message: withCreated(msg, created)}, nil
}

// apply sets the desired window unless it already matches under tolerance.
func (r *Reconciler) apply(ctx context.Context, unit config.Unit, auth *Authorization, current, desired *booking.Window, created bool) (Outcome, error) {
	startStr := desired.Start.In(r.zone).Format("02.01.2006 15:04")
	endStr := desired.End.In(r.zone).Format("02.01.2006 15:04")

	if desired.EqualWithin(current, r.tolerance) {
		msg := fmt.Sprintf("[OK] %s: code %q already correct: %s until %s", unit.Name, unit.AuthName, startStr, endStr)
		return Outcome{Action: ActionNone, Created: created, Window: desired, Message: withCreated(msg, created)}, nil
	}

	if err := r.store.SetWindow(ctx, unit.SmartlockID, auth.ID, &desired.Start, &desired.End); err != nil {
		return Outcome{}, fmt.Errorf("setting window for code %q: %w", unit.AuthName, err)
	}
	r.sync(ctx, unit)

	msg := fmt.Sprintf("[OK] %s: code %q set valid from %s until %s", unit.Name, unit.AuthName, startStr, endStr)
	return Outcome{Action: ActionUpdated, Created: created, Window: desired, Message: withCreated(msg, created)}, nil
}

// sync triggers a best-effort backend-to-lock sync after a write.
func (r *Reconciler) sync(ctx context.Context, unit config.Unit) {
	if !r.forceSync {
		return
	}
	if err := r.store.ForceSync(ctx, unit.SmartlockID); err != nil {
		r.logger.Warnf("%s: forced sync failed: %v", unit.Name, err)
		return
	}
	r.logger.Infof("%s: forced sync triggered", unit.Name)
}

func withCreated(msg string, created bool) string {
	if created {
		return msg + " (code created)"
	}
	return msg
}
