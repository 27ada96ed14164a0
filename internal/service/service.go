// internal/service/service.go

// Package service is the surface the surrounding application integrates
// against. Every operation takes and returns plain data records; screens,
// notifications, and other collaborators live entirely on the far side of
// this boundary.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/squadsync/squadsync/internal/feed"
	"github.com/squadsync/squadsync/internal/leadership"
	"github.com/squadsync/squadsync/internal/models"
	"github.com/squadsync/squadsync/internal/predict"
	"github.com/squadsync/squadsync/internal/progress"
	"github.com/squadsync/squadsync/internal/reliability"
	"github.com/squadsync/squadsync/internal/roster"
	"github.com/squadsync/squadsync/internal/store"
)

// Service wires the aggregator store, scorer, and record store together
// behind the exposed operations.
type Service struct {
	Aggregators *roster.Store
	Scorer      *reliability.Scorer

	recordStore store.RecordStore
	logger      *logrus.Logger
}

// New builds the service over its collaborators.
func New(rs store.RecordStore, cf feed.ChangeFeed, logger *logrus.Logger, retry roster.RetryPolicy) *Service {
	return &Service{
		Aggregators: roster.NewStore(rs, cf, logger, retry),
		Scorer:      reliability.NewScorer(rs),
		recordStore: rs,
		logger:      logger,
	}
}

// SubmitRSVP records a user's response to a session. The returned record is
// the optimistic local result; durability and broadcast settle asynchronously.
func (s *Service) SubmitRSVP(ctx context.Context, sessionID, userID uuid.UUID, response models.Response, sourceID string) (models.AttendanceRecord, error) {
	if _, err := s.recordStore.GetSession(ctx, sessionID); err != nil {
		return models.AttendanceRecord{}, err
	}
	agg := s.Aggregators.GetOrCreate(sessionID)
	return agg.Submit(ctx, userID, response, sourceID)
}

// WithdrawRSVP tombstones a user's response, e.g. when they leave the squad.
// The record survives as history; it just leaves the merged view.
func (s *Service) WithdrawRSVP(ctx context.Context, sessionID, userID uuid.UUID, sourceID string) (models.AttendanceRecord, error) {
	if _, err := s.recordStore.GetSession(ctx, sessionID); err != nil {
		return models.AttendanceRecord{}, err
	}
	return s.Aggregators.GetOrCreate(sessionID).Withdraw(ctx, userID, sourceID)
}

// GetMergedRoster returns the session's current merged view, most recent
// response first.
func (s *Service) GetMergedRoster(ctx context.Context, sessionID uuid.UUID) ([]models.AttendanceRecord, error) {
	if _, err := s.recordStore.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.Aggregators.GetOrCreate(sessionID).Snapshot(), nil
}

// PredictSession computes the no-show risk for every yes/maybe responder on
// the session's current roster.
func (s *Service) PredictSession(ctx context.Context, sessionID uuid.UUID) (models.SessionRisk, error) {
	rosterView, err := s.GetMergedRoster(ctx, sessionID)
	if err != nil {
		return models.SessionRisk{}, err
	}

	entries := make([]predict.RosterEntry, 0, len(rosterView))
	for _, rec := range rosterView {
		score, err := s.Scorer.Score(ctx, rec.UserID)
		if err != nil {
			return models.SessionRisk{}, fmt.Errorf("failed to load reliability for %s: %w", rec.UserID, err)
		}
		entries = append(entries, predict.RosterEntry{Record: rec, Reliability: score})
	}
	return predict.PredictSession(sessionID, entries), nil
}

// RankLeaders computes the squad's leadership board over the trailing
// activity window.
func (s *Service) RankLeaders(ctx context.Context, squadID uuid.UUID) (models.LeaderBoard, error) {
	activity, err := s.recordStore.GetSquadActivity(ctx, squadID, leadership.WindowDays)
	if err != nil {
		return models.LeaderBoard{}, err
	}

	scores := make(map[uuid.UUID]float64, len(activity))
	for _, member := range activity {
		score, err := s.Scorer.Score(ctx, member.UserID)
		if err != nil {
			return models.LeaderBoard{}, fmt.Errorf("failed to load reliability for %s: %w", member.UserID, err)
		}
		scores[member.UserID] = score
	}
	return leadership.Rank(squadID, activity, scores), nil
}

// IsSessionComplete reports whether enough players committed "yes".
func (s *Service) IsSessionComplete(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	session, err := s.recordStore.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return progress.IsComplete(session, s.Aggregators.GetOrCreate(sessionID).Snapshot()), nil
}

// RecordSessionOutcomes applies ground-truth attendance for a completed
// session to every affected user's reliability score. Driven by the caller
// when the session transitions to completed; repeated calls for the same
// session are no-ops thanks to the scorer's idempotency guard.
func (s *Service) RecordSessionOutcomes(ctx context.Context, sessionID uuid.UUID, attended map[uuid.UUID]bool) error {
	session, err := s.recordStore.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.SessionCompleted {
		return &models.ValidationError{Field: "status", Value: string(session.Status)}
	}

	for userID, wasThere := range attended {
		if err := s.Scorer.RecordOutcome(ctx, userID, sessionID, wasThere); err != nil {
			return fmt.Errorf("failed to record outcome for %s: %w", userID, err)
		}
	}
	s.logger.WithFields(logrus.Fields{
		"session":  sessionID,
		"outcomes": len(attended),
	}).Info("recorded session outcomes")
	return nil
}

// ObserveRoster attaches a live observer to the session's merged roster.
func (s *Service) ObserveRoster(ctx context.Context, sessionID uuid.UUID) (*roster.Observer, *roster.Aggregator, error) {
	if _, err := s.recordStore.GetSession(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	agg := s.Aggregators.GetOrCreate(sessionID)
	return agg.Observe(0), agg, nil
}

// Shutdown drains in-flight durable writes.
func (s *Service) Shutdown() {
	s.Aggregators.Shutdown()
}
