// internal/models/attendance.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Response is a user's commitment to a session.
type Response string

const (
	ResponseYes   Response = "yes"
	ResponseNo    Response = "no"
	ResponseMaybe Response = "maybe"
)

// Valid reports whether r is one of the three allowed response values.
func (r Response) Valid() bool {
	switch r {
	case ResponseYes, ResponseNo, ResponseMaybe:
		return true
	}
	return false
}

// AttendanceRecord is one user's current response to one session. The
// (SessionID, UserID) pair is the record's key; for a given key only the
// record with the highest Version is authoritative. Records are never
// physically deleted; a delete arrives as a tombstone (Deleted=true) with a
// bumped version, and completed-session records feed the reliability scorer.
type AttendanceRecord struct {
	SessionID   uuid.UUID `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	Response    Response  `json:"response"`
	RespondedAt time.Time `json:"responded_at"`

	// Version is assigned by the originating write and increases
	// monotonically per key. SourceID identifies the writer (device/session
	// token) and breaks same-version ties lexicographically.
	Version  int64  `json:"version"`
	SourceID string `json:"source_id"`

	Deleted bool `json:"deleted,omitempty"`
}

// Key identifies an attendance record independent of its version.
type Key struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

// RecordKey returns the record's (session, user) key.
func (rec AttendanceRecord) RecordKey() Key {
	return Key{SessionID: rec.SessionID, UserID: rec.UserID}
}

// Supersedes reports whether rec wins over old for the same key. Higher
// version wins; on a version tie the greater SourceID wins, so every observer
// resolves the race identically without a central sequencer.
func (rec AttendanceRecord) Supersedes(old AttendanceRecord) bool {
	if rec.Version != old.Version {
		return rec.Version > old.Version
	}
	return rec.SourceID > old.SourceID
}

// SessionOutcome is the ground truth for one user in one completed session.
type SessionOutcome struct {
	SessionID uuid.UUID `json:"session_id"`
	Attended  bool      `json:"attended"`
}
