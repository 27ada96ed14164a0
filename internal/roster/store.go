// internal/roster/store.go
package roster

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/squadsync/squadsync/internal/feed"
	"github.com/squadsync/squadsync/internal/store"
)

const (
	// defaultIdleAfter is how long a session may go untouched before its
	// aggregator is evicted. Eviction through OnEmpty only covers sessions
	// that had observers; plain HTTP access relies on this sweep.
	defaultIdleAfter = 15 * time.Minute
	sweepInterval    = time.Minute
)

// Store manages the live Aggregator instances in memory, one per session.
// Each instance gets its own run loop; cancelling the store's context stops
// them all.
type Store struct {
	recordStore store.RecordStore
	changeFeed  feed.ChangeFeed
	logger      *logrus.Logger
	retry       RetryPolicy

	// rootCtx outlives any request; run loops hang off it, not off whatever
	// request first touched the session.
	rootCtx  context.Context
	rootStop context.CancelFunc

	mu        sync.Mutex
	entries   map[uuid.UUID]*entry
	idleAfter time.Duration
}

type entry struct {
	agg    *Aggregator
	cancel context.CancelFunc
}

// NewStore initializes an empty aggregator store.
func NewStore(rs store.RecordStore, cf feed.ChangeFeed, logger *logrus.Logger, retry RetryPolicy) *Store {
	rootCtx, rootStop := context.WithCancel(context.Background())
	s := &Store{
		recordStore: rs,
		changeFeed:  cf,
		logger:      logger,
		retry:       retry,
		rootCtx:     rootCtx,
		rootStop:    rootStop,
		entries:     make(map[uuid.UUID]*entry),
		idleAfter:   defaultIdleAfter,
	}
	go s.sweepLoop()
	return s
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.rootCtx.Done():
			return
		case <-ticker.C:
			s.sweepIdle()
		}
	}
}

// sweepIdle evicts every aggregator that has gone unused past the idle
// threshold.
func (s *Store) sweepIdle() {
	s.mu.Lock()
	ttl := s.idleAfter
	var idle []uuid.UUID
	for id, e := range s.entries {
		if e.agg.idleFor(ttl) {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	for _, id := range idle {
		s.Remove(id)
	}
}

// GetOrCreate returns the session's aggregator, starting one (and its feed
// run loop) if it is not resident yet.
func (s *Store) GetOrCreate(sessionID uuid.UUID) *Aggregator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[sessionID]; ok {
		return e.agg
	}

	agg := New(sessionID, s.recordStore, s.changeFeed, s.logger, s.retry)
	agg.OnEmpty = func(id uuid.UUID) { s.Remove(id) }

	runCtx, cancel := context.WithCancel(s.rootCtx)
	s.entries[sessionID] = &entry{agg: agg, cancel: cancel}

	go func() {
		if err := agg.Run(runCtx); err != nil && runCtx.Err() == nil {
			s.logger.WithFields(logrus.Fields{
				"session": sessionID,
				"error":   err,
			}).Error("aggregator run loop exited")
		}
	}()
	return agg
}

// Get returns a resident aggregator, if any.
func (s *Store) Get(sessionID uuid.UUID) (*Aggregator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, false
	}
	return e.agg, true
}

// Remove stops a session's run loop and evicts the instance. Typically
// triggered by the aggregator's OnEmpty callback.
func (s *Store) Remove(sessionID uuid.UUID) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if ok {
		delete(s.entries, sessionID)
	}
	s.mu.Unlock()
	if ok {
		e.cancel()
		s.logger.WithField("session", sessionID).Info("evicted idle session aggregator")
	}
}

// Shutdown stops every resident aggregator and waits for in-flight durable
// writes to settle.
func (s *Store) Shutdown() {
	s.rootStop()
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for id, e := range s.entries {
		entries = append(entries, e)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.cancel()
		e.agg.Wait()
	}
}
