// internal/feed/fake.go
package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/models"
)

// Fake is an in-process ChangeFeed for tests and standalone runs. Publish
// delivers synchronously in call order, and Inject lets tests replay events
// with arbitrary sequence numbers to simulate out-of-order arrival,
// redelivery, and gaps.
type Fake struct {
	mu   sync.Mutex
	seqs map[uuid.UUID]int64
	subs map[uuid.UUID][]chan Event
}

// NewFake returns an empty fake feed.
func NewFake() *Fake {
	return &Fake{
		seqs: make(map[uuid.UUID]int64),
		subs: make(map[uuid.UUID][]chan Event),
	}
}

func (f *Fake) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan Event, error) {
	ch := make(chan Event, 256)
	f.mu.Lock()
	f.subs[sessionID] = append(f.subs[sessionID], ch)
	f.mu.Unlock()
	return ch, nil
}

func (f *Fake) Unsubscribe(sessionID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[sessionID] {
		close(ch)
	}
	delete(f.subs, sessionID)
}

// Publish assigns the next sequence number and delivers to every subscriber.
// Sends happen under the mutex so a concurrent Unsubscribe can never close a
// channel mid-send; a full subscriber drops the event, and the resulting
// sequence gap forces that subscriber to resync.
func (f *Fake) Publish(ctx context.Context, sessionID uuid.UUID, op Op, rec models.AttendanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seqs[sessionID]++
	ev := Event{Op: op, Seq: f.seqs[sessionID], Record: rec}
	for _, ch := range f.subs[sessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Inject delivers a fully-formed event as-is, bypassing sequence assignment.
func (f *Fake) Inject(sessionID uuid.UUID, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[sessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
