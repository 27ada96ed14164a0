// internal/roster/aggregator_test.go
package roster

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadsync/squadsync/internal/feed"
	"github.com/squadsync/squadsync/internal/models"
	"github.com/squadsync/squadsync/internal/store"
)

func newTestAggregator(t *testing.T) (*Aggregator, *store.Memory, *feed.Fake) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	mem := store.NewMemory()
	fake := feed.NewFake()
	agg := New(uuid.New(), mem, fake, logger, RetryPolicy{
		AckTimeout: 200 * time.Millisecond,
		MaxElapsed: 500 * time.Millisecond,
	})
	return agg, mem, fake
}

func remoteEvent(agg *Aggregator, userID uuid.UUID, response models.Response, version int64, sourceID string) feed.Event {
	return feed.Event{
		Op: feed.OpUpdate,
		Record: models.AttendanceRecord{
			SessionID:   agg.SessionID,
			UserID:      userID,
			Response:    response,
			RespondedAt: time.Now().UTC(),
			Version:     version,
			SourceID:    sourceID,
		},
	}
}

func TestApplyRemoteEventIdempotent(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	userID := uuid.New()

	ev := remoteEvent(agg, userID, models.ResponseYes, 3, "device-a")
	require.NoError(t, agg.ApplyRemoteEvent(ev))
	first := agg.Snapshot()

	require.NoError(t, agg.ApplyRemoteEvent(ev))
	assert.Equal(t, first, agg.Snapshot(), "reapplying the same event must not change state")
}

func TestOutOfOrderConvergence(t *testing.T) {
	userID := uuid.New()
	responses := []models.Response{
		models.ResponseYes, models.ResponseNo, models.ResponseMaybe,
		models.ResponseYes, models.ResponseMaybe,
	}

	for seed := int64(0); seed < 10; seed++ {
		agg, _, _ := newTestAggregator(t)

		order := rand.New(rand.NewSource(seed)).Perm(len(responses))
		for _, i := range order {
			ev := remoteEvent(agg, userID, responses[i], int64(i+1), "device-a")
			require.NoError(t, agg.ApplyRemoteEvent(ev))
		}

		snap := agg.Snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, int64(len(responses)), snap[0].Version,
			"arrival order %v must converge to the max version", order)
		assert.Equal(t, responses[len(responses)-1], snap[0].Response)
	}
}

func TestSameVersionTieBreakBySourceID(t *testing.T) {
	userID := uuid.New()
	a := func(agg *Aggregator) feed.Event { return remoteEvent(agg, userID, models.ResponseYes, 2, "device-a") }
	b := func(agg *Aggregator) feed.Event { return remoteEvent(agg, userID, models.ResponseMaybe, 2, "device-b") }

	// Both arrival orders must pick the same winner.
	agg1, _, _ := newTestAggregator(t)
	require.NoError(t, agg1.ApplyRemoteEvent(a(agg1)))
	require.NoError(t, agg1.ApplyRemoteEvent(b(agg1)))

	agg2, _, _ := newTestAggregator(t)
	require.NoError(t, agg2.ApplyRemoteEvent(b(agg2)))
	require.NoError(t, agg2.ApplyRemoteEvent(a(agg2)))

	require.Len(t, agg1.Snapshot(), 1)
	require.Len(t, agg2.Snapshot(), 1)
	assert.Equal(t, "device-b", agg1.Snapshot()[0].SourceID)
	assert.Equal(t, "device-b", agg2.Snapshot()[0].SourceID)
}

func TestDeleteIsTombstoneNotRemoval(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	userID := uuid.New()

	require.NoError(t, agg.ApplyRemoteEvent(remoteEvent(agg, userID, models.ResponseYes, 1, "device-a")))

	del := remoteEvent(agg, userID, models.ResponseYes, 2, "device-a")
	del.Op = feed.OpDelete
	require.NoError(t, agg.ApplyRemoteEvent(del))
	assert.Empty(t, agg.Snapshot(), "tombstoned record must leave the view")

	// A stale update must still lose to the tombstone's version.
	require.NoError(t, agg.ApplyRemoteEvent(remoteEvent(agg, userID, models.ResponseMaybe, 1, "device-c")))
	assert.Empty(t, agg.Snapshot())
}

func TestSnapshotOrdering(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	base := time.Now().UTC()

	older := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	tieLow := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	tieHigh := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	mk := func(userID uuid.UUID, at time.Time) feed.Event {
		ev := remoteEvent(agg, userID, models.ResponseYes, 1, "device-a")
		ev.Record.RespondedAt = at
		return ev
	}
	require.NoError(t, agg.ApplyRemoteEvent(mk(older, base.Add(-time.Hour))))
	require.NoError(t, agg.ApplyRemoteEvent(mk(tieHigh, base)))
	require.NoError(t, agg.ApplyRemoteEvent(mk(tieLow, base)))

	snap := agg.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, tieLow, snap[0].UserID, "ties break by user id ascending")
	assert.Equal(t, tieHigh, snap[1].UserID)
	assert.Equal(t, older, snap[2].UserID, "most recent response first")
}

func TestSubmitRejectsInvalidResponse(t *testing.T) {
	agg, _, _ := newTestAggregator(t)

	_, err := agg.Submit(context.Background(), uuid.New(), models.Response("attending"), "device-a")
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, agg.Snapshot(), "a rejected submission must never be partially applied")
}

func TestSubmitAssignsIncreasingVersions(t *testing.T) {
	agg, mem, _ := newTestAggregator(t)
	userID := uuid.New()
	ctx := context.Background()

	first, err := agg.Submit(ctx, userID, models.ResponseMaybe, "device-a")
	require.NoError(t, err)
	second, err := agg.Submit(ctx, userID, models.ResponseYes, "device-a")
	require.NoError(t, err)

	assert.Greater(t, second.Version, first.Version)

	agg.Wait()
	stored, err := mem.GetRoster(ctx, agg.SessionID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, second.Version, stored[0].Version, "only the latest intent is durable")
}

func TestRollbackOnRejectedWrite(t *testing.T) {
	agg, mem, _ := newTestAggregator(t)
	userID := uuid.New()
	ctx := context.Background()

	// Establish a known-good record first.
	good, err := agg.Submit(ctx, userID, models.ResponseYes, "device-a")
	require.NoError(t, err)
	agg.Wait()

	mem.RejectWrites = true
	_, err = agg.Submit(ctx, userID, models.ResponseMaybe, "device-a")
	require.NoError(t, err, "submit is optimistic; the rejection surfaces later")
	agg.Wait()

	snap := agg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, good.Version, snap[0].Version, "rejected write must roll back to last known-good")
	assert.Equal(t, models.ResponseYes, snap[0].Response)
}

func TestRollbackWithoutPriorRecord(t *testing.T) {
	agg, mem, _ := newTestAggregator(t)
	mem.RejectWrites = true

	_, err := agg.Submit(context.Background(), uuid.New(), models.ResponseYes, "device-a")
	require.NoError(t, err)
	agg.Wait()

	assert.Empty(t, agg.Snapshot(), "first-ever write rollback empties the key")
}

func TestRollbackSkipsUnacknowledgedPredecessor(t *testing.T) {
	agg, mem, _ := newTestAggregator(t)
	mem.RejectWrites = true
	userID := uuid.New()
	ctx := context.Background()

	// Neither write ever lands: the first retry is superseded by the second
	// submit, and the second is rejected outright. Rolling back to the first
	// record would resurrect a version the store never accepted.
	_, err := agg.Submit(ctx, userID, models.ResponseYes, "device-a")
	require.NoError(t, err)
	_, err = agg.Submit(ctx, userID, models.ResponseMaybe, "device-a")
	require.NoError(t, err)
	agg.Wait()

	assert.Empty(t, agg.Snapshot(), "no acknowledged write exists, so the key must empty")
}

func TestRollbackRestoresRemoteAcknowledgedRecord(t *testing.T) {
	agg, mem, _ := newTestAggregator(t)
	userID := uuid.New()
	ctx := context.Background()

	// A peer's durable write arrives over the feed.
	remote := remoteEvent(agg, userID, models.ResponseYes, 1, "device-b")
	require.NoError(t, agg.ApplyRemoteEvent(remote))

	mem.RejectWrites = true
	_, err := agg.Submit(ctx, userID, models.ResponseMaybe, "device-a")
	require.NoError(t, err)
	agg.Wait()

	snap := agg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "device-b", snap[0].SourceID, "rollback lands on the peer's acknowledged record")
	assert.Equal(t, models.ResponseYes, snap[0].Response)
}

func TestFeedGapDetected(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	userID := uuid.New()

	ev1 := remoteEvent(agg, userID, models.ResponseYes, 1, "device-a")
	ev1.Seq = 1
	require.NoError(t, agg.ApplyRemoteEvent(ev1))

	ev3 := remoteEvent(agg, userID, models.ResponseNo, 3, "device-a")
	ev3.Seq = 3
	err := agg.ApplyRemoteEvent(ev3)
	assert.ErrorIs(t, err, models.ErrStaleSnapshot)
}

func TestResyncRebuildsFromStore(t *testing.T) {
	agg, mem, _ := newTestAggregator(t)
	userID := uuid.New()
	ctx := context.Background()

	// The store holds a record the aggregator never saw (missed feed events).
	require.NoError(t, mem.PutRecord(ctx, models.AttendanceRecord{
		SessionID:   agg.SessionID,
		UserID:      userID,
		Response:    models.ResponseMaybe,
		RespondedAt: time.Now().UTC(),
		Version:     7,
		SourceID:    "device-z",
	}))

	require.NoError(t, agg.Resync(ctx))
	snap := agg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(7), snap[0].Version)

	// Live events already reflected in the snapshot are discarded afterwards.
	require.NoError(t, agg.ApplyRemoteEvent(remoteEvent(agg, userID, models.ResponseYes, 5, "device-a")))
	assert.Equal(t, int64(7), agg.Snapshot()[0].Version)
}

func TestObserverNotifications(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	obs := agg.Observe(16)
	defer agg.Unobserve(obs)

	initial := <-obs.C
	assert.Equal(t, UpdateRoster, initial.Kind)
	assert.Empty(t, initial.Roster)

	rec, err := agg.Submit(context.Background(), uuid.New(), models.ResponseYes, "device-a")
	require.NoError(t, err)

	update := <-obs.C
	assert.Equal(t, UpdateRecord, update.Kind)
	assert.Equal(t, rec, update.Record)
}

func TestOnEmptyFiresAfterLastObserver(t *testing.T) {
	agg, _, _ := newTestAggregator(t)

	fired := make(chan uuid.UUID, 1)
	agg.OnEmpty = func(id uuid.UUID) { fired <- id }

	obs1 := agg.Observe(1)
	obs2 := agg.Observe(1)
	agg.Unobserve(obs1)
	select {
	case <-fired:
		t.Fatal("OnEmpty fired while an observer remained")
	default:
	}

	agg.Unobserve(obs2)
	select {
	case id := <-fired:
		assert.Equal(t, agg.SessionID, id)
	case <-time.After(time.Second):
		t.Fatal("OnEmpty never fired")
	}
}

func TestRunAppliesLiveEvents(t *testing.T) {
	agg, _, fake := newTestAggregator(t)
	userID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = agg.Run(ctx)
	}()

	// Publishing goes through the fake's sequence assignment, like a peer
	// service instance would.
	require.Eventually(t, func() bool {
		err := fake.Publish(ctx, agg.SessionID, feed.OpInsert, models.AttendanceRecord{
			SessionID:   agg.SessionID,
			UserID:      userID,
			Response:    models.ResponseYes,
			RespondedAt: time.Now().UTC(),
			Version:     1,
			SourceID:    "peer",
		})
		return err == nil && len(agg.Snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
