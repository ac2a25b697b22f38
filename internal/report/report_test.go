package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	date := time.Date(2025, 6, 10, 5, 0, 0, 0, time.UTC)

	assert.Equal(t, "OK - Stay Lock Sync Report - 10.06.2025",
		Subject("Stay Lock Sync Report", false, date))
	assert.Equal(t, "FAILED - Stay Lock Sync Report - 10.06.2025",
		Subject("Stay Lock Sync Report", true, date))
}

func TestBody(t *testing.T) {
	lines := []string{
		`[OK] Beach House: code "Guests" already correct: 10.06.2025 15:00 until 12.06.2025 11:00`,
		"[ERR] City Loft: source: fetching sheet: timeout",
	}

	body := Body(lines)
	assert.Equal(t, lines[0]+"\n\n"+lines[1], body)

	assert.Empty(t, Body(nil))
}
