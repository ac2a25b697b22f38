package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stay-lock-sync/backend/internal/booking"
	"github.com/stay-lock-sync/backend/internal/config"
)

// fakeStore is an in-memory AuthStore recording every write.
type fakeStore struct {
	auths     []Authorization
	createErr error
	windowErr error

	creates    int
	setWindows int
	syncs      int
}

func (f *fakeStore) List(ctx context.Context, smartlockID int64) ([]Authorization, error) {
	return f.auths, nil
}

func (f *fakeStore) Create(ctx context.Context, smartlockID int64, name string, pin, weekdayMask int) error {
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	f.auths = append(f.auths, Authorization{
		ID:              fmt.Sprintf("auth-%d", len(f.auths)+1),
		Name:            name,
		Type:            AuthTypeKeypad,
		AllowedWeekDays: weekdayMask,
	})
	return nil
}

func (f *fakeStore) SetWindow(ctx context.Context, smartlockID int64, authID string, start, end *time.Time) error {
	f.setWindows++
	if f.windowErr != nil {
		return f.windowErr
	}
	for i := range f.auths {
		if f.auths[i].ID != authID {
			continue
		}
		if start == nil || end == nil {
			f.auths[i].AllowedFromDate = nil
			f.auths[i].AllowedUntilDate = nil
		} else {
			from := formatBackendTime(*start)
			until := formatBackendTime(*end)
			f.auths[i].AllowedFromDate = &from
			f.auths[i].AllowedUntilDate = &until
		}
		return nil
	}
	return fmt.Errorf("authorization %s not found", authID)
}

func (f *fakeStore) ForceSync(ctx context.Context, smartlockID int64) error {
	f.syncs++
	return nil
}

func testUnit(pin *int) config.Unit {
	return config.Unit{
		ID:          "beach-house",
		Name:        "Beach House",
		AuthName:    "Guests",
		DriveFileID: "file-1",
		SmartlockID: 123,
		PIN:         pin,
	}
}

func existingAuth(from, until *time.Time) Authorization {
	auth := Authorization{ID: "auth-1", Name: "Guests", Type: AuthTypeKeypad, AllowedWeekDays: AllWeekdays}
	if from != nil {
		s := formatBackendTime(*from)
		auth.AllowedFromDate = &s
	}
	if until != nil {
		s := formatBackendTime(*until)
		auth.AllowedUntilDate = &s
	}
	return auth
}

func testWindow() *booking.Window {
	return &booking.Window{
		Start: time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC),
	}
}

func newTestReconciler(store AuthStore) *Reconciler {
	return NewReconciler(store, time.UTC, false, zap.NewNop().Sugar())
}

func TestReconcileSetsWindow(t *testing.T) {
	store := &fakeStore{auths: []Authorization{existingAuth(nil, nil)}}
	r := newTestReconciler(store)

	outcome, err := r.Reconcile(context.Background(), testUnit(nil), testWindow())
	require.NoError(t, err)

	assert.Equal(t, ActionUpdated, outcome.Action)
	assert.False(t, outcome.Created)
	assert.Equal(t, 1, store.setWindows)
	assert.Contains(t, outcome.Message, "[OK] Beach House")
	assert.Contains(t, outcome.Message, "set valid from 10.06.2025 13:00 until 12.06.2025 09:00")
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := &fakeStore{auths: []Authorization{existingAuth(nil, nil)}}
	r := newTestReconciler(store)
	unit := testUnit(nil)
	desired := testWindow()

	_, err := r.Reconcile(context.Background(), unit, desired)
	require.NoError(t, err)
	require.Equal(t, 1, store.setWindows)

	// Second pass with unchanged inputs must issue zero writes.
	outcome, err := r.Reconcile(context.Background(), unit, desired)
	require.NoError(t, err)

	assert.Equal(t, ActionNone, outcome.Action)
	assert.Equal(t, 1, store.setWindows)
	assert.Contains(t, outcome.Message, "already correct")
}

func TestReconcileTolerance(t *testing.T) {
	desired := testWindow()

	tests := []struct {
		name   string
		offset time.Duration
		action Action
		writes int
	}{
		{"within tolerance", 60 * time.Second, ActionNone, 0},
		{"beyond tolerance", 61 * time.Second, ActionUpdated, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := desired.Start.Add(tt.offset)
			until := desired.End
			store := &fakeStore{auths: []Authorization{existingAuth(&from, &until)}}
			r := newTestReconciler(store)

			outcome, err := r.Reconcile(context.Background(), testUnit(nil), desired)
			require.NoError(t, err)

			assert.Equal(t, tt.action, outcome.Action)
			assert.Equal(t, tt.writes, store.setWindows)
		})
	}
}

func TestReconcileDisables(t *testing.T) {
	from := testWindow().Start
	until := testWindow().End
	store := &fakeStore{auths: []Authorization{existingAuth(&from, &until)}}
	r := newTestReconciler(store)

	outcome, err := r.Reconcile(context.Background(), testUnit(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, ActionCleared, outcome.Action)
	assert.Equal(t, 1, store.setWindows)
	assert.Contains(t, outcome.Message, "disabled")
}

func TestReconcileAlreadyDisabled(t *testing.T) {
	store := &fakeStore{auths: []Authorization{existingAuth(nil, nil)}}
	r := newTestReconciler(store)

	outcome, err := r.Reconcile(context.Background(), testUnit(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, ActionNone, outcome.Action)
	assert.Equal(t, 0, store.setWindows)
	assert.Contains(t, outcome.Message, "already disabled")
}

func TestReconcileCreatesMissingCode(t *testing.T) {
	store := &fakeStore{}
	r := newTestReconciler(store)
	pin := 246810

	outcome, err := r.Reconcile(context.Background(), testUnit(&pin), testWindow())
	require.NoError(t, err)

	assert.True(t, outcome.Created)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, ActionUpdated, outcome.Action)
	assert.Contains(t, outcome.Message, "(code created)")
}

func TestReconcileMissingCodeWithoutPIN(t *testing.T) {
	store := &fakeStore{}
	r := newTestReconciler(store)

	_, err := r.Reconcile(context.Background(), testUnit(nil), testWindow())
	require.ErrorIs(t, err, ErrMissingPIN)
	assert.Equal(t, 0, store.creates)
}

func TestReconcileToleratesCreateConflict(t *testing.T) {
	// The backend reports the code already exists; the re-read finds it.
	store := &fakeStore{createErr: ErrConflict}
	r := newTestReconciler(store)
	pin := 246810

	store.auths = []Authorization{existingAuth(nil, nil)}
	// Drop the entry from the first list so ensure attempts a create.
	first := true
	r.store = storeFunc{
		listFn: func(ctx context.Context, id int64) ([]Authorization, error) {
			if first {
				first = false
				return nil, nil
			}
			return store.auths, nil
		},
		inner: store,
	}
	r.reader = NewReader(r.store)

	outcome, err := r.Reconcile(context.Background(), testUnit(&pin), testWindow())
	require.NoError(t, err)
	assert.True(t, outcome.Created)
	assert.Equal(t, ActionUpdated, outcome.Action)
}

// storeFunc overrides List while delegating writes to an inner store.
type storeFunc struct {
	listFn func(ctx context.Context, smartlockID int64) ([]Authorization, error)
	inner  AuthStore
}

func (s storeFunc) List(ctx context.Context, smartlockID int64) ([]Authorization, error) {
	return s.listFn(ctx, smartlockID)
}

func (s storeFunc) Create(ctx context.Context, smartlockID int64, name string, pin, weekdayMask int) error {
	return s.inner.Create(ctx, smartlockID, name, pin, weekdayMask)
}

func (s storeFunc) SetWindow(ctx context.Context, smartlockID int64, authID string, start, end *time.Time) error {
	return s.inner.SetWindow(ctx, smartlockID, authID, start, end)
}

func (s storeFunc) ForceSync(ctx context.Context, smartlockID int64) error {
	return s.inner.ForceSync(ctx, smartlockID)
}

func TestReconcileForceSyncAfterWrite(t *testing.T) {
	store := &fakeStore{auths: []Authorization{existingAuth(nil, nil)}}
	r := NewReconciler(store, time.UTC, true, zap.NewNop().Sugar())

	_, err := r.Reconcile(context.Background(), testUnit(nil), testWindow())
	require.NoError(t, err)
	assert.Equal(t, 1, store.syncs)

	// An unchanged second pass writes nothing and must not sync either.
	_, err = r.Reconcile(context.Background(), testUnit(nil), testWindow())
	require.NoError(t, err)
	assert.Equal(t, 1, store.syncs)
}

func TestReconcileIgnoresOtherAuthorizations(t *testing.T) {
	store := &fakeStore{auths: []Authorization{
		{ID: "other", Name: "Owner", Type: AuthTypeKeypad},
		{ID: "app", Name: "Guests", Type: 0}, // non-keypad entry with same name
		existingAuth(nil, nil),
	}}
	r := newTestReconciler(store)

	outcome, err := r.Reconcile(context.Background(), testUnit(nil), testWindow())
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, outcome.Action)

	// Only the keypad entry named after the unit was touched.
	assert.Nil(t, store.auths[0].AllowedFromDate)
	assert.Nil(t, store.auths[1].AllowedFromDate)
	assert.NotNil(t, store.auths[2].AllowedFromDate)
}
