// Package booking provides the booking sheet source, tabular parsing, and
// the stay-window resolver that turns calendar rows into the single access
// window a unit's guest code should carry.
package booking

import (
	"time"
)

// Booking is one calendar row: the guest arrives on Arrival and leaves on
// Departure. Both carry date precision only (midnight in the unit's zone);
// Departure is never before Arrival for any Booking produced by this
// package. A same-day row only counts as a stay in arrival-day mode.
type Booking struct {
	Arrival   time.Time
	Departure time.Time
}

// Window is the absolute-time interval during which the guest code should be
// active. Both bounds are UTC. A nil *Window means no active or future stay.
type Window struct {
	Start time.Time
	End   time.Time
}

// EqualWithin reports whether two windows match under the given per-bound
// tolerance. Two nil windows are equal; a nil and a non-nil window are not.
// The tolerance absorbs backend timestamp rounding so that an unchanged
// window never triggers a rewrite.
func (w *Window) EqualWithin(other *Window, tolerance time.Duration) bool {
	if w == nil && other == nil {
		return true
	}
	if (w == nil) != (other == nil) {
		return false
	}
	return within(w.Start, other.Start, tolerance) && within(w.End, other.End, tolerance)
}

func within(a, b time.Time, tolerance time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// sameDate reports whether a and b fall on the same calendar day.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOf truncates t to midnight on its calendar day in zone.
func DateOf(t time.Time, zone *time.Location) time.Time {
	t = t.In(zone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, zone)
}
