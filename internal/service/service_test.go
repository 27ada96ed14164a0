// internal/service/service_test.go
package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadsync/squadsync/internal/feed"
	"github.com/squadsync/squadsync/internal/models"
	"github.com/squadsync/squadsync/internal/roster"
	"github.com/squadsync/squadsync/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	mem := store.NewMemory()
	svc := New(mem, feed.NewFake(), logger, roster.RetryPolicy{
		AckTimeout: 200 * time.Millisecond,
		MaxElapsed: 500 * time.Millisecond,
	})
	t.Cleanup(svc.Shutdown)
	return svc, mem
}

func seedSession(mem *store.Memory, required int, status models.SessionStatus) models.Session {
	s := models.Session{
		ID:              uuid.New(),
		SquadID:         uuid.New(),
		RequiredPlayers: required,
		ScheduledTime:   time.Now().Add(24 * time.Hour),
		Status:          status,
	}
	mem.SeedSession(s)
	return s
}

func TestSubmitRSVPUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SubmitRSVP(context.Background(), uuid.New(), uuid.New(), models.ResponseYes, "device-a")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubmitAndMergeRoster(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	session := seedSession(mem, 5, models.SessionConfirmed)

	alice := uuid.New()
	bob := uuid.New()

	_, err := svc.SubmitRSVP(ctx, session.ID, alice, models.ResponseYes, "alice-phone")
	require.NoError(t, err)
	_, err = svc.SubmitRSVP(ctx, session.ID, bob, models.ResponseMaybe, "bob-phone")
	require.NoError(t, err)

	// Alice changes her mind from another device; last writer wins.
	rec, err := svc.SubmitRSVP(ctx, session.ID, alice, models.ResponseNo, "alice-laptop")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)

	merged, err := svc.GetMergedRoster(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	for _, r := range merged {
		if r.UserID == alice {
			assert.Equal(t, models.ResponseNo, r.Response)
		}
	}
}

func TestIsSessionComplete(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	session := seedSession(mem, 2, models.SessionConfirmed)

	complete, err := svc.IsSessionComplete(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, complete)

	for i := 0; i < 2; i++ {
		_, err := svc.SubmitRSVP(ctx, session.ID, uuid.New(), models.ResponseYes, "device")
		require.NoError(t, err)
	}
	_, err = svc.SubmitRSVP(ctx, session.ID, uuid.New(), models.ResponseMaybe, "device")
	require.NoError(t, err)

	complete, err = svc.IsSessionComplete(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestPredictSessionUsesReliability(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	session := seedSession(mem, 5, models.SessionConfirmed)

	flaky := uuid.New()
	solid := uuid.New()
	out := uuid.New()

	require.NoError(t, mem.PutReliabilityProfile(ctx, models.UserReliabilityProfile{
		UserID: flaky, RollingScore: 40, SampleCount: 10,
	}))

	_, err := svc.SubmitRSVP(ctx, session.ID, flaky, models.ResponseYes, "device")
	require.NoError(t, err)
	_, err = svc.SubmitRSVP(ctx, session.ID, solid, models.ResponseYes, "device")
	require.NoError(t, err)
	_, err = svc.SubmitRSVP(ctx, session.ID, out, models.ResponseNo, "device")
	require.NoError(t, err)

	risk, err := svc.PredictSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, risk.PerUser, 2, "no responders are excluded")
	assert.Equal(t, flaky, risk.PerUser[0].UserID, "lowest reliability ranks first")
	assert.Equal(t, models.RiskHigh, risk.PerUser[0].RiskTier)
	assert.Equal(t, models.RiskLow, risk.PerUser[1].RiskTier)
}

func TestRecordSessionOutcomes(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	session := seedSession(mem, 5, models.SessionCompleted)

	showed := uuid.New()
	ghosted := uuid.New()

	require.NoError(t, svc.RecordSessionOutcomes(ctx, session.ID, map[uuid.UUID]bool{
		showed:  true,
		ghosted: false,
	}))

	ghostScore, err := svc.Scorer.Score(ctx, ghosted)
	require.NoError(t, err)
	assert.InDelta(t, 85.0, ghostScore, 1e-9)

	showedScore, err := svc.Scorer.Score(ctx, showed)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, showedScore, 1e-9)
}

func TestRecordSessionOutcomesRequiresCompleted(t *testing.T) {
	svc, mem := newTestService(t)
	session := seedSession(mem, 5, models.SessionConfirmed)

	err := svc.RecordSessionOutcomes(context.Background(), session.ID, map[uuid.UUID]bool{uuid.New(): true})
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRankLeaders(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	squadID := uuid.New()

	lead := uuid.New()
	rising := uuid.New()
	mem.SeedActivity(squadID, []models.SquadMemberActivity{
		{UserID: lead, Role: models.RoleLeader, SessionsOrganized: 8, SessionsProposed: 10, RespondedInTime: 9},
		{UserID: rising, Role: models.RoleMember, SessionsOrganized: 6, SessionsProposed: 10, RespondedInTime: 10},
	})

	board, err := svc.RankLeaders(ctx, squadID)
	require.NoError(t, err)
	require.Len(t, board.CurrentLeaders, 1)
	require.Len(t, board.PotentialLeaders, 1)
	assert.Equal(t, lead, board.CurrentLeaders[0].UserID)
	assert.Equal(t, rising, board.PotentialLeaders[0].UserID)

	_, err = svc.RankLeaders(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
