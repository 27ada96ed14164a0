// internal/models/session.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a proposed gaming session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionConfirmed SessionStatus = "confirmed"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is a proposed gaming time slot requiring a minimum player count.
// The session row is owned by the external session store; the core reads
// RequiredPlayers and Status and never writes back.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	SquadID         uuid.UUID     `json:"squad_id"`
	RequiredPlayers int           `json:"required_players"`
	ScheduledTime   time.Time     `json:"scheduled_time"`
	Status          SessionStatus `json:"status"`
}
