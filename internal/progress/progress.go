// internal/progress/progress.go

// Package progress is the yes-count-vs-required view every upstream screen
// reads. It shares the predictor's counting rule: only "yes" fulfills a
// slot, "maybe" does not.
package progress

import "github.com/squadsync/squadsync/internal/models"

// CountYes returns the number of committed responders on the roster.
func CountYes(roster []models.AttendanceRecord) int {
	n := 0
	for _, rec := range roster {
		if rec.Response == models.ResponseYes && !rec.Deleted {
			n++
		}
	}
	return n
}

// IsComplete reports whether the roster fulfills the session's required
// player count.
func IsComplete(session models.Session, roster []models.AttendanceRecord) bool {
	return CountYes(roster) >= session.RequiredPlayers
}
