// internal/feed/feed.go

// Package feed is the per-session broadcast of attendance record changes.
// The transport is abstracted behind ChangeFeed so aggregators can be fed by
// Redis pub/sub in production and by a deterministic in-process fake in
// tests, including out-of-order and duplicated delivery.
package feed

import (
	"context"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/models"
)

// Op is the kind of change an event carries.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one change-feed notification. Seq increases by one per event
// within a session's stream; a subscriber observing a jump has missed events
// and must resync from the record store.
type Event struct {
	Op     Op                      `json:"op"`
	Seq    int64                   `json:"seq"`
	Record models.AttendanceRecord `json:"record"`
}

// ChangeFeed delivers attendance change events per session. Delivery is
// unordered and at-least-once; consumers dedupe by record version.
type ChangeFeed interface {
	// Subscribe starts delivery of the session's events. The channel closes
	// when ctx is cancelled or Unsubscribe is called.
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan Event, error)

	// Unsubscribe stops delivery for the session.
	Unsubscribe(sessionID uuid.UUID)

	// Publish broadcasts an event to all of the session's subscribers. The
	// feed assigns Seq.
	Publish(ctx context.Context, sessionID uuid.UUID, op Op, rec models.AttendanceRecord) error
}
