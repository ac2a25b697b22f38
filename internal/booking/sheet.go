package booking

import (
	"fmt"
	"strings"
	"time"
)

// headerScanLimit caps how many leading rows are searched for the header.
// Booking sheets tend to carry a few decorative rows above the real table.
const headerScanLimit = 40

// ParseTable extracts bookings from raw sheet rows. The header row is
// auto-detected: the first row (within the scan limit) containing both the
// arrival and departure column names, compared case- and
// whitespace-insensitively. Rows below it with unparseable or incomplete
// dates, or with departure before arrival, are dropped. Same-day rows are
// kept; the resolver decides per mode whether they count as stays.
func ParseTable(rows [][]string, arrivalCol, departureCol string, zone *time.Location) ([]Booking, error) {
	arrivalIdx, departureIdx, headerRow, err := findHeader(rows, arrivalCol, departureCol)
	if err != nil {
		return nil, err
	}

	var bookings []Booking
	for _, row := range rows[headerRow+1:] {
		if arrivalIdx >= len(row) || departureIdx >= len(row) {
			continue
		}

		arrival, ok := parseDate(row[arrivalIdx], zone)
		if !ok {
			continue
		}
		departure, ok := parseDate(row[departureIdx], zone)
		if !ok {
			continue
		}
		if departure.Before(arrival) {
			continue
		}

		bookings = append(bookings, Booking{Arrival: arrival, Departure: departure})
	}

	return bookings, nil
}

// findHeader locates the header row and the two column indices.
func findHeader(rows [][]string, arrivalCol, departureCol string) (arrivalIdx, departureIdx, headerRow int, err error) {
	arrivalKey := normalize(arrivalCol)
	departureKey := normalize(departureCol)

	limit := len(rows)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}

	for i := 0; i < limit; i++ {
		arrivalIdx, departureIdx = -1, -1
		for j, cell := range rows[i] {
			switch normalize(cell) {
			case arrivalKey:
				arrivalIdx = j
			case departureKey:
				departureIdx = j
			}
		}
		if arrivalIdx >= 0 && departureIdx >= 0 {
			return arrivalIdx, departureIdx, i, nil
		}
	}

	return 0, 0, 0, fmt.Errorf("header row with columns %q and %q not found", arrivalCol, departureCol)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// dateLayouts are tried in order. Day-first layouts come before ISO so that
// ambiguous values like 03/04/2025 read as 3 April, matching the sheet's
// locale.
var dateLayouts = []string{
	"2.1.2006",
	"02.01.2006",
	"2-1-2006",
	"02-01-2006",
	"2/1/2006",
	"02/01/2006",
	"2006-01-02",
}

// parseDate parses a day-first date cell into midnight in zone. Cells may
// carry a trailing time component, which is ignored.
func parseDate(cell string, zone *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, false
	}
	if idx := strings.IndexAny(s, " T"); idx > 0 {
		s = s[:idx]
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, zone); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
