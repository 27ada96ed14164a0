// internal/store/store.go

// Package store is the durable boundary of the core: attendance records,
// sessions, reliability profiles, and the squad activity queries the
// leadership ranker reads. The storage engine itself is external; this
// package only defines the contract plus the Postgres and in-memory
// implementations of it.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/models"
)

// RecordStore is the durable keeper of one record per (session, user)
// response, plus the session and profile reads the core depends on.
type RecordStore interface {
	// GetSession reads a session's row. Returns models.ErrNotFound for an
	// unknown id.
	GetSession(ctx context.Context, sessionID uuid.UUID) (models.Session, error)

	// GetRoster returns the full current snapshot for a session, one record
	// per user, highest version only.
	GetRoster(ctx context.Context, sessionID uuid.UUID) ([]models.AttendanceRecord, error)

	// PutRecord durably writes an attendance record. The write may be
	// rejected server-side; the caller rolls back its optimistic copy then.
	PutRecord(ctx context.Context, rec models.AttendanceRecord) error

	// GetCompletedOutcomes returns a user's completed-session outcomes
	// within the trailing window.
	GetCompletedOutcomes(ctx context.Context, userID uuid.UUID, windowDays int) ([]models.SessionOutcome, error)

	// GetReliabilityProfile reads a user's profile. Returns
	// models.ErrNotFound if the user has no recorded outcomes yet.
	GetReliabilityProfile(ctx context.Context, userID uuid.UUID) (models.UserReliabilityProfile, error)

	// PutReliabilityProfile upserts a profile after a scorer update.
	PutReliabilityProfile(ctx context.Context, profile models.UserReliabilityProfile) error

	// GetSquadActivity returns per-member participation history for a squad
	// over the trailing window. Returns models.ErrNotFound for an unknown
	// squad.
	GetSquadActivity(ctx context.Context, squadID uuid.UUID, windowDays int) ([]models.SquadMemberActivity, error)
}
