// internal/roster/aggregator.go

// Package roster owns the authoritative in-memory merged view of a session's
// attendance. One Aggregator instance exists per session; all mutations for
// the session are serialized through its mutex so last-writer-wins
// resolution is well-defined, while any number of observers read snapshots
// and receive update notifications concurrently.
package roster

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/squadsync/squadsync/internal/feed"
	"github.com/squadsync/squadsync/internal/models"
	"github.com/squadsync/squadsync/internal/store"
)

// RetryPolicy bounds the durable-write retry loop.
type RetryPolicy struct {
	// AckTimeout is the per-attempt deadline for a durable write.
	AckTimeout time.Duration
	// MaxElapsed caps total retry time before the failure surfaces.
	MaxElapsed time.Duration
}

// DefaultRetryPolicy matches the config defaults.
var DefaultRetryPolicy = RetryPolicy{
	AckTimeout: 3 * time.Second,
	MaxElapsed: 30 * time.Second,
}

// pendingWrite tracks the in-flight durable write for one key. Only the
// latest intent matters: a newer submit cancels the previous version's retry.
type pendingWrite struct {
	version int64
	cancel  context.CancelFunc
}

// Aggregator maintains the merged (userID -> AttendanceRecord) mapping for a
// single session. Tombstoned records stay in the map so stale remote events
// for the same key keep losing the version comparison.
type Aggregator struct {
	SessionID uuid.UUID

	// OnEmpty is called after the last observer detaches, typically wired by
	// the Store to evict the instance.
	OnEmpty func(sessionID uuid.UUID)

	store  store.RecordStore
	feed   feed.ChangeFeed
	logger *logrus.Logger
	retry  RetryPolicy

	mu      sync.Mutex
	records map[uuid.UUID]models.AttendanceRecord
	pending map[uuid.UUID]*pendingWrite

	// acked holds, per key, the newest record known to be durable: a
	// successful local write, a feed event, or a resync row. It is the
	// rollback target when an optimistic write is rejected.
	acked map[uuid.UUID]models.AttendanceRecord

	observers  map[int64]*Observer
	nextObsID  int64
	lastSeq    int64
	haveSeq    bool
	lastTouch  time.Time
	writeGroup sync.WaitGroup
}

// New builds an aggregator for one session.
func New(sessionID uuid.UUID, st store.RecordStore, cf feed.ChangeFeed, logger *logrus.Logger, retry RetryPolicy) *Aggregator {
	return &Aggregator{
		SessionID: sessionID,
		store:     st,
		feed:      cf,
		logger:    logger,
		retry:     retry,
		records:   make(map[uuid.UUID]models.AttendanceRecord),
		pending:   make(map[uuid.UUID]*pendingWrite),
		acked:     make(map[uuid.UUID]models.AttendanceRecord),
		observers: make(map[int64]*Observer),
		lastTouch: time.Now(),
	}
}

// Submit applies a user's response optimistically and returns the new record
// immediately. The durable write and its broadcast to other observers happen
// asynchronously; if the write is ultimately rejected the optimistic record
// is rolled back to the key's last acknowledged state.
func (a *Aggregator) Submit(ctx context.Context, userID uuid.UUID, response models.Response, sourceID string) (models.AttendanceRecord, error) {
	if !response.Valid() {
		return models.AttendanceRecord{}, &models.ValidationError{Field: "response", Value: string(response)}
	}
	return a.submit(ctx, userID, response, sourceID, false)
}

// Withdraw tombstones a user's response. The tombstone is a version bump, not
// a physical removal, so it wins against stale remote events like any write.
func (a *Aggregator) Withdraw(ctx context.Context, userID uuid.UUID, sourceID string) (models.AttendanceRecord, error) {
	return a.submit(ctx, userID, models.ResponseNo, sourceID, true)
}

func (a *Aggregator) submit(ctx context.Context, userID uuid.UUID, response models.Response, sourceID string, deleted bool) (models.AttendanceRecord, error) {
	a.mu.Lock()
	a.lastTouch = time.Now()

	version := int64(1)
	if prev, ok := a.records[userID]; ok {
		version = prev.Version + 1
	}

	rec := models.AttendanceRecord{
		SessionID:   a.SessionID,
		UserID:      userID,
		Response:    response,
		RespondedAt: time.Now().UTC(),
		Version:     version,
		SourceID:    sourceID,
		Deleted:     deleted,
	}
	a.records[userID] = rec

	// Supersede any in-flight retry for this key; only the latest intent is
	// ever durably written.
	if p, ok := a.pending[userID]; ok {
		p.cancel()
	}
	writeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.pending[userID] = &pendingWrite{version: version, cancel: cancel}

	a.notifyUnsafe(Update{Kind: UpdateRecord, Record: rec})
	a.mu.Unlock()

	a.writeGroup.Add(1)
	go a.persist(writeCtx, rec)

	return rec, nil
}

// persist durably writes rec with bounded exponential backoff, then
// broadcasts it on the change feed. A validation rejection is permanent and
// triggers rollback; transient failures retry until MaxElapsed.
func (a *Aggregator) persist(ctx context.Context, rec models.AttendanceRecord) {
	defer a.writeGroup.Done()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = a.retry.MaxElapsed

	err := backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.retry.AckTimeout)
		defer cancel()

		if err := a.store.PutRecord(attemptCtx, rec); err != nil {
			var ve *models.ValidationError
			if errors.As(err, &ve) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))

	if ctx.Err() != nil {
		// Superseded by a newer submit for the same key; the newer write owns
		// the outcome now.
		return
	}

	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"session": a.SessionID,
			"user":    rec.UserID,
			"version": rec.Version,
			"error":   err,
		}).Error("durable write failed, rolling back optimistic record")
		a.rollback(rec)
		return
	}

	a.markAcked(rec)

	op := feed.OpUpdate
	switch {
	case rec.Deleted:
		op = feed.OpDelete
	case rec.Version == 1:
		op = feed.OpInsert
	}
	if err := a.feed.Publish(ctx, a.SessionID, op, rec); err != nil {
		a.logger.WithFields(logrus.Fields{
			"session": a.SessionID,
			"user":    rec.UserID,
			"error":   err,
		}).Warn("failed to broadcast accepted record; peers will catch up on resync")
	}
}

// rollback restores the last acknowledged record for the key, unless a newer
// submit has already replaced the failed one. A record the store never
// accepted is not a valid rollback target, so a key with no acknowledged
// write empties instead.
func (a *Aggregator) rollback(failed models.AttendanceRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.records[failed.UserID]
	if !ok || cur.Version != failed.Version || cur.SourceID != failed.SourceID {
		return
	}
	if good, ok := a.acked[failed.UserID]; ok {
		a.records[failed.UserID] = good
		a.notifyUnsafe(Update{Kind: UpdateRecord, Record: good})
	} else {
		delete(a.records, failed.UserID)
		a.notifyUnsafe(Update{Kind: UpdateRoster, Roster: a.snapshotUnsafe()})
	}
	delete(a.pending, failed.UserID)
}

// markAcked settles a durable write: clears its pending entry and records it
// as the key's rollback target.
func (a *Aggregator) markAcked(rec models.AttendanceRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pending[rec.UserID]; ok && p.version == rec.Version {
		delete(a.pending, rec.UserID)
	}
	a.markAckedUnsafe(rec)
}

// markAckedUnsafe assumes the lock is held.
func (a *Aggregator) markAckedUnsafe(rec models.AttendanceRecord) {
	if held, ok := a.acked[rec.UserID]; !ok || rec.Supersedes(held) {
		a.acked[rec.UserID] = rec
	}
}

// ApplyRemoteEvent idempotently applies a change-feed notification. Stale and
// duplicate events lose the version comparison and are discarded, so
// redelivery and out-of-order arrival are safe. Returns ErrStaleSnapshot when
// the event's sequence number reveals a gap in the feed; the caller must
// Resync before continuing.
func (a *Aggregator) ApplyRemoteEvent(ev feed.Event) error {
	if ev.Record.SessionID != a.SessionID {
		return &models.ValidationError{Field: "session_id", Value: ev.Record.SessionID.String()}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if ev.Seq > 0 {
		if a.haveSeq && ev.Seq > a.lastSeq+1 {
			return models.ErrStaleSnapshot
		}
		if !a.haveSeq || ev.Seq > a.lastSeq {
			a.lastSeq = ev.Seq
			a.haveSeq = true
		}
	}

	rec := ev.Record
	if ev.Op == feed.OpDelete {
		rec.Deleted = true
	}

	// Anything on the feed was durably accepted somewhere, even when a newer
	// local record keeps it out of the view.
	a.markAckedUnsafe(rec)

	if held, ok := a.records[rec.UserID]; ok && !rec.Supersedes(held) {
		return nil
	}
	a.records[rec.UserID] = rec
	a.notifyUnsafe(Update{Kind: UpdateRecord, Record: rec})
	return nil
}

// Snapshot returns the merged roster, most recent response first, ties broken
// by userId ascending. Tombstoned records are not part of the view.
func (a *Aggregator) Snapshot() []models.AttendanceRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastTouch = time.Now()
	return a.snapshotUnsafe()
}

// idleFor reports whether the aggregator has had no observers, no in-flight
// writes, and no local access for at least ttl. Remote feed events do not
// count as activity; a session nobody here reads or writes is still idle.
func (a *Aggregator) idleFor(ttl time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.observers) == 0 && len(a.pending) == 0 && time.Since(a.lastTouch) >= ttl
}

// snapshotUnsafe assumes the lock is held.
func (a *Aggregator) snapshotUnsafe() []models.AttendanceRecord {
	out := make([]models.AttendanceRecord, 0, len(a.records))
	for _, rec := range a.records {
		if rec.Deleted {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RespondedAt.Equal(out[j].RespondedAt) {
			return out[i].RespondedAt.After(out[j].RespondedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

// Resync rebuilds the local view from the record store. This is the only way
// to recover from deletes and updates missed across a feed gap; deletes are
// tombstone version bumps, so the fetched snapshot carries them and they win
// the version comparison. Local records that supersede their fetched
// counterpart survive the rebuild; those are optimistic writes still in
// flight, which either land durably or roll back on their own.
func (a *Aggregator) Resync(ctx context.Context) error {
	fetched, err := a.store.GetRoster(ctx, a.SessionID)
	if err != nil {
		return &models.TransientError{Err: err}
	}

	a.mu.Lock()
	fresh := make(map[uuid.UUID]models.AttendanceRecord, len(fetched))
	for _, rec := range fetched {
		fresh[rec.UserID] = rec
		a.markAckedUnsafe(rec)
	}
	for userID, local := range a.records {
		if held, ok := fresh[userID]; !ok || local.Supersedes(held) {
			fresh[userID] = local
		}
	}
	a.records = fresh
	a.haveSeq = false
	a.lastSeq = 0
	snap := a.snapshotUnsafe()
	a.notifyUnsafe(Update{Kind: UpdateRoster, Roster: snap})
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"session": a.SessionID,
		"records": len(fetched),
	}).Info("roster resynced from record store")
	return nil
}

// Run subscribes to the session's change feed and applies events until ctx is
// cancelled, resyncing on detected gaps. Call it in its own goroutine.
func (a *Aggregator) Run(ctx context.Context) error {
	events, err := a.feed.Subscribe(ctx, a.SessionID)
	if err != nil {
		return &models.TransientError{Err: err}
	}
	defer a.feed.Unsubscribe(a.SessionID)

	if err := a.Resync(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := a.ApplyRemoteEvent(ev); errors.Is(err, models.ErrStaleSnapshot) {
				if err := a.Resync(ctx); err != nil {
					return err
				}
				// The gap is healed; the event that revealed it is already
				// reflected in the fetched snapshot or will win by version.
				_ = a.ApplyRemoteEvent(ev)
			}
		}
	}
}

// Observe registers a new roster observer and immediately queues the current
// snapshot on its channel.
func (a *Aggregator) Observe(buffer int) *Observer {
	if buffer <= 0 {
		buffer = 16
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextObsID++
	obs := &Observer{id: a.nextObsID, C: make(chan Update, buffer), logger: a.logger}
	a.observers[obs.id] = obs
	obs.send(Update{Kind: UpdateRoster, Roster: a.snapshotUnsafe()})
	return obs
}

// Unobserve detaches an observer and closes its channel. If no observers
// remain, OnEmpty fires.
func (a *Aggregator) Unobserve(obs *Observer) {
	a.mu.Lock()
	if _, ok := a.observers[obs.id]; !ok {
		a.mu.Unlock()
		return
	}
	delete(a.observers, obs.id)
	close(obs.C)
	empty := len(a.observers) == 0
	onEmpty := a.OnEmpty
	a.mu.Unlock()

	if empty && onEmpty != nil {
		onEmpty(a.SessionID)
	}
}

// notifyUnsafe fans an update out to all observers. Assumes lock is held;
// sends are non-blocking so a slow observer cannot stall mutations.
func (a *Aggregator) notifyUnsafe(u Update) {
	for _, obs := range a.observers {
		obs.send(u)
	}
}

// Wait blocks until all in-flight durable writes settle. Used in tests and
// on shutdown.
func (a *Aggregator) Wait() {
	a.writeGroup.Wait()
}
