package runner

import "fmt"

// Kind classifies what broke for a unit. The kind decides nothing at
// runtime beyond the summary wording; every kind is fatal to its unit only
// and never to the run.
type Kind string

const (
	// KindConfiguration: the unit is missing required identifiers, or its
	// guest code is absent with no provisioning PIN to create it.
	KindConfiguration Kind = "configuration"
	// KindSource: the booking sheet is unreachable, malformed, or missing
	// the expected columns.
	KindSource Kind = "source"
	// KindBackend: the lock API returned an unexpected status or payload.
	KindBackend Kind = "backend"
)

// UnitError wraps a unit-scoped failure with its classification.
type UnitError struct {
	Kind Kind
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}
