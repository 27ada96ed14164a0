// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/models"
)

// Memory is an in-process RecordStore used by tests and standalone runs.
// It applies the same supersedes rule as the Postgres upsert so either
// backend converges to the same winner.
type Memory struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.Session
	records  map[models.Key]models.AttendanceRecord
	outcomes map[uuid.UUID][]models.SessionOutcome
	profiles map[uuid.UUID]models.UserReliabilityProfile
	activity map[uuid.UUID][]models.SquadMemberActivity

	// RejectWrites makes PutRecord fail, for exercising the rollback path.
	RejectWrites bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[uuid.UUID]models.Session),
		records:  make(map[models.Key]models.AttendanceRecord),
		outcomes: make(map[uuid.UUID][]models.SessionOutcome),
		profiles: make(map[uuid.UUID]models.UserReliabilityProfile),
		activity: make(map[uuid.UUID][]models.SquadMemberActivity),
	}
}

// SeedSession installs a session row.
func (m *Memory) SeedSession(s models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// SeedOutcomes installs a user's completed-session history.
func (m *Memory) SeedOutcomes(userID uuid.UUID, outcomes []models.SessionOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[userID] = outcomes
}

// SeedActivity installs a squad's member activity window.
func (m *Memory) SeedActivity(squadID uuid.UUID, activity []models.SquadMemberActivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity[squadID] = activity
}

func (m *Memory) GetSession(ctx context.Context, sessionID uuid.UUID) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return models.Session{}, models.ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetRoster(ctx context.Context, sessionID uuid.UUID) ([]models.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roster []models.AttendanceRecord
	for key, rec := range m.records {
		if key.SessionID == sessionID {
			roster = append(roster, rec)
		}
	}
	return roster, nil
}

func (m *Memory) PutRecord(ctx context.Context, rec models.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RejectWrites {
		return &models.ValidationError{Field: "record", Value: "rejected by store"}
	}
	key := rec.RecordKey()
	if old, ok := m.records[key]; ok && !rec.Supersedes(old) {
		return nil
	}
	m.records[key] = rec
	return nil
}

func (m *Memory) GetCompletedOutcomes(ctx context.Context, userID uuid.UUID, windowDays int) ([]models.SessionOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SessionOutcome(nil), m.outcomes[userID]...), nil
}

func (m *Memory) GetReliabilityProfile(ctx context.Context, userID uuid.UUID) (models.UserReliabilityProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prof, ok := m.profiles[userID]
	if !ok {
		return models.UserReliabilityProfile{}, models.ErrNotFound
	}
	return prof, nil
}

func (m *Memory) PutReliabilityProfile(ctx context.Context, profile models.UserReliabilityProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = profile
	return nil
}

func (m *Memory) GetSquadActivity(ctx context.Context, squadID uuid.UUID, windowDays int) ([]models.SquadMemberActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	activity, ok := m.activity[squadID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return append([]models.SquadMemberActivity(nil), activity...), nil
}
