// internal/roster/observer.go
package roster

import (
	"github.com/sirupsen/logrus"

	"github.com/squadsync/squadsync/internal/models"
)

// UpdateKind discriminates observer notifications.
type UpdateKind string

const (
	// UpdateRecord carries a single applied record change.
	UpdateRecord UpdateKind = "record"
	// UpdateRoster carries a full snapshot, sent after a resync.
	UpdateRoster UpdateKind = "roster"
)

// Update is one notification delivered to a roster observer.
type Update struct {
	Kind   UpdateKind                `json:"kind"`
	Record models.AttendanceRecord   `json:"record,omitempty"`
	Roster []models.AttendanceRecord `json:"roster,omitempty"`
}

// Observer is a single subscriber to a session's merged roster. Each of a
// user's devices watching the session holds its own Observer.
type Observer struct {
	id     int64
	C      chan Update
	logger *logrus.Logger
}

// send pushes an update non-blockingly. A slow observer drops updates rather
// than stalling the aggregator; the next snapshot catches it up.
func (o *Observer) send(u Update) {
	select {
	case o.C <- u:
	default:
		o.logger.WithFields(logrus.Fields{
			"observer": o.id,
			"kind":     u.Kind,
		}).Warn("observer channel full, dropped roster update")
	}
}
