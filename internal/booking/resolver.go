package booking

import (
	"sort"
	"time"

	"github.com/stay-lock-sync/backend/internal/config"
)

// Resolver computes the authoritative stay window for a unit from its
// bookings. It is a pure value: no I/O, deterministic for a given input, so
// the selection policy can be tested exhaustively.
type Resolver struct {
	Checkin  config.Clock
	Checkout config.Clock
	Zone     *time.Location
	// Mode selects the resolution policy. ModeCurrentOrNext picks the
	// currently active stay or, failing that, the soonest future one.
	// ModeArrivalDay additionally activates the window on a booking's
	// arrival day even when the stay also departs that same day.
	Mode string
}

// candidate pairs a booking with its tie-break key.
type candidate struct {
	booking   Booking
	daysUntil int
}

// Resolve returns the access window implied by the bookings for "today", or
// nil when no current or future stay exists. A currently active stay always
// wins over any future one; among future stays the soonest arrival wins,
// with the arrival date as final tie-break.
func (r Resolver) Resolve(bookings []Booking, today time.Time) *Window {
	today = DateOf(today, r.Zone)

	var candidates []candidate
	for _, b := range bookings {
		// A same-day row is a turnover marker, not a stay, unless
		// arrival-day mode says otherwise.
		if r.Mode != config.ModeArrivalDay && !b.Departure.After(b.Arrival) {
			continue
		}
		switch {
		case r.isCurrent(b, today):
			candidates = append(candidates, candidate{booking: b, daysUntil: 0})
		case !b.Arrival.Before(today):
			candidates = append(candidates, candidate{booking: b, daysUntil: daysBetween(today, b.Arrival)})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].daysUntil != candidates[j].daysUntil {
			return candidates[i].daysUntil < candidates[j].daysUntil
		}
		return candidates[i].booking.Arrival.Before(candidates[j].booking.Arrival)
	})
	picked := candidates[0].booking

	start := r.Checkin.On(picked.Arrival, r.Zone)
	end := r.Checkout.On(picked.Departure, r.Zone)
	// Checkout before checkin on the same calendar offset is the normal
	// hotel case (11:00 out, 15:00 in); roll the end over one day.
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}

	return &Window{Start: start.UTC(), End: end.UTC()}
}

// daysBetween counts calendar days from a to b. Both are zone-local
// midnights; mapping them onto UTC days keeps the count exact across DST
// transitions, where a local day is 23 or 25 hours long.
func daysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}

// isCurrent reports whether the booking covers today under the configured
// mode.
func (r Resolver) isCurrent(b Booking, today time.Time) bool {
	if !b.Arrival.After(today) && today.Before(b.Departure) {
		return true
	}
	if r.Mode == config.ModeArrivalDay {
		return sameDate(b.Arrival, today)
	}
	return false
}

// Turnover reports whether today is simultaneously a departure day of one
// booking and an arrival day of another. Only meaningful in arrival-day
// mode, where it feeds the summary line; it never changes the resolved
// window.
func (r Resolver) Turnover(bookings []Booking, today time.Time) bool {
	today = DateOf(today, r.Zone)

	var arrives, departs bool
	for _, b := range bookings {
		if sameDate(b.Arrival, today) {
			arrives = true
		}
		if sameDate(b.Departure, today) {
			departs = true
		}
	}
	return arrives && departs
}
