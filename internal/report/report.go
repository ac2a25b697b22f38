// Package report formats the per-run summary and delivers it by mail.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Subject builds the report subject line: delivery classification, the
// configured prefix, and the run date.
func Subject(prefix string, hadError bool, date time.Time) string {
	status := "OK"
	if hadError {
		status = "FAILED"
	}
	return fmt.Sprintf("%s - %s - %s", status, prefix, date.Format("02.01.2006"))
}

// Body renders the summary lines as one paragraph each, separated by a
// blank line.
func Body(lines []string) string {
	return strings.Join(lines, "\n\n")
}
