package lock

import (
	"context"
	"strings"
)

// Reader resolves the current authorization entry for a unit's guest code.
// The backend is the source of truth and may be modified out-of-band, so the
// reader is consulted freshly before every reconcile decision; nothing is
// cached across passes.
type Reader struct {
	store AuthStore
}

// NewReader creates a reader over the given store.
func NewReader(store AuthStore) *Reader {
	return &Reader{store: store}
}

// Current returns the keypad authorization whose name matches authName,
// compared case-insensitively after trimming. Returns nil, nil when no such
// entry exists or the backend reports an empty list.
func (r *Reader) Current(ctx context.Context, smartlockID int64, authName string) (*Authorization, error) {
	auths, err := r.store.List(ctx, smartlockID)
	if err != nil {
		return nil, err
	}

	want := strings.TrimSpace(authName)
	for i := range auths {
		if auths[i].Type != AuthTypeKeypad {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(auths[i].Name), want) {
			return &auths[i], nil
		}
	}

	return nil, nil
}
