// internal/reliability/scorer.go

// Package reliability maintains the rolling 0-100 trust score derived from a
// user's attend/no-show history. The update rule is an exponential decay so
// a single session nudges rather than dominates the score, and recent
// behavior outweighs old behavior without storing unbounded history.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/models"
)

// Alpha is the outcome weight in the rolling update:
//
//	new = clamp(old*(1-Alpha) + outcome*Alpha, 0, 100)
//
// where outcome is 100 for attended and 0 for a no-show.
const Alpha = 0.15

// outcomeKey identifies one (user, session) scoring application.
type outcomeKey struct {
	userID    uuid.UUID
	sessionID uuid.UUID
}

// Scorer owns per-user reliability profiles. It is the only writer of that
// state; the predictor and ranker read through it. A seen-set guards against
// double-applying the same (user, session) outcome.
type Scorer struct {
	store ProfileStore

	mu   sync.Mutex
	seen map[outcomeKey]struct{}
}

// ProfileStore is the durable side of the scorer. Outcome history backs the
// replay path for users whose profile row is missing.
type ProfileStore interface {
	GetReliabilityProfile(ctx context.Context, userID uuid.UUID) (models.UserReliabilityProfile, error)
	PutReliabilityProfile(ctx context.Context, profile models.UserReliabilityProfile) error
	GetCompletedOutcomes(ctx context.Context, userID uuid.UUID, windowDays int) ([]models.SessionOutcome, error)
}

// replayWindowDays bounds how far back Score folds outcome history when it
// has to rebuild a missing profile.
const replayWindowDays = 90

// NewScorer builds a scorer over the given profile store.
func NewScorer(store ProfileStore) *Scorer {
	return &Scorer{
		store: store,
		seen:  make(map[outcomeKey]struct{}),
	}
}

// Next is the pure update rule, exposed for the predictor's tests and any
// caller that wants to preview a score change. Out-of-range inputs are
// clamped, never rejected.
func Next(oldScore float64, attended bool) float64 {
	old := clamp(oldScore, 0, 100)
	outcome := 0.0
	if attended {
		outcome = 100.0
	}
	return clamp(old*(1-Alpha)+outcome*Alpha, 0, 100)
}

// RecordOutcome applies one completed-session outcome to the user's rolling
// score. Invoked when a session transitions to completed, once per attendee;
// a repeated (user, session) pair is a no-op.
func (s *Scorer) RecordOutcome(ctx context.Context, userID, sessionID uuid.UUID, attended bool) error {
	key := outcomeKey{userID: userID, sessionID: sessionID}
	s.mu.Lock()
	if _, dup := s.seen[key]; dup {
		s.mu.Unlock()
		return nil
	}
	s.seen[key] = struct{}{}
	s.mu.Unlock()

	prof, err := s.store.GetReliabilityProfile(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		prof = models.UserReliabilityProfile{
			UserID:       userID,
			RollingScore: models.DefaultReliability,
		}
	} else if err != nil {
		s.unsee(key)
		return fmt.Errorf("failed to load reliability profile: %w", err)
	}

	prof.RollingScore = Next(prof.RollingScore, attended)
	prof.SampleCount++

	if err := s.store.PutReliabilityProfile(ctx, prof); err != nil {
		s.unsee(key)
		return fmt.Errorf("failed to store reliability profile: %w", err)
	}
	return nil
}

// Score returns the user's current rolling score. A missing profile row is
// rebuilt by folding the user's recent completed-session outcomes in order;
// a user with no outcomes at all scores the optimistic default.
func (s *Scorer) Score(ctx context.Context, userID uuid.UUID) (float64, error) {
	prof, err := s.store.GetReliabilityProfile(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return s.replay(ctx, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load reliability profile: %w", err)
	}
	return clamp(prof.RollingScore, 0, 100), nil
}

// replay recomputes a score from durable outcome history. The result is not
// written back; the next RecordOutcome re-establishes the profile row.
func (s *Scorer) replay(ctx context.Context, userID uuid.UUID) (float64, error) {
	outcomes, err := s.store.GetCompletedOutcomes(ctx, userID, replayWindowDays)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return 0, fmt.Errorf("failed to load outcome history: %w", err)
	}
	score := models.DefaultReliability
	for _, o := range outcomes {
		score = Next(score, o.Attended)
	}
	return score, nil
}

// unsee releases an idempotency claim after a failed apply so the caller can
// retry the outcome.
func (s *Scorer) unsee(key outcomeKey) {
	s.mu.Lock()
	delete(s.seen, key)
	s.mu.Unlock()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
