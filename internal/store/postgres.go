// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squadsync/squadsync/internal/models"
)

// Postgres implements RecordStore over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool to connStr and pings it.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) GetSession(ctx context.Context, sessionID uuid.UUID) (models.Session, error) {
	var s models.Session
	q := `
	SELECT id, squad_id, required_players, scheduled_time, status
	FROM sessions
	WHERE id = $1
	`
	err := p.pool.QueryRow(ctx, q, sessionID).Scan(
		&s.ID, &s.SquadID, &s.RequiredPlayers, &s.ScheduledTime, &s.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, models.ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return s, nil
}

func (p *Postgres) GetRoster(ctx context.Context, sessionID uuid.UUID) ([]models.AttendanceRecord, error) {
	q := `
	SELECT session_id, user_id, response, responded_at, version, source_id, deleted
	FROM attendance_records
	WHERE session_id = $1
	`
	rows, err := p.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var roster []models.AttendanceRecord
	for rows.Next() {
		var rec models.AttendanceRecord
		if err := rows.Scan(
			&rec.SessionID, &rec.UserID, &rec.Response, &rec.RespondedAt,
			&rec.Version, &rec.SourceID, &rec.Deleted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		roster = append(roster, rec)
	}
	return roster, rows.Err()
}

// PutRecord upserts the record only if it supersedes the stored version, so
// concurrent writers racing through different service instances still land on
// the same winner the aggregators picked.
func (p *Postgres) PutRecord(ctx context.Context, rec models.AttendanceRecord) error {
	q := `
	INSERT INTO attendance_records (
		session_id, user_id, response, responded_at, version, source_id, deleted
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (session_id, user_id) DO UPDATE
	SET response = EXCLUDED.response,
	    responded_at = EXCLUDED.responded_at,
	    version = EXCLUDED.version,
	    source_id = EXCLUDED.source_id,
	    deleted = EXCLUDED.deleted
	WHERE EXCLUDED.version > attendance_records.version
	   OR (EXCLUDED.version = attendance_records.version
	       AND EXCLUDED.source_id > attendance_records.source_id)
	`
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			rec.SessionID, rec.UserID, rec.Response, rec.RespondedAt,
			rec.Version, rec.SourceID, rec.Deleted,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to put attendance record: %w", err)
	}
	return nil
}

func (p *Postgres) GetCompletedOutcomes(ctx context.Context, userID uuid.UUID, windowDays int) ([]models.SessionOutcome, error) {
	q := `
	SELECT o.session_id, o.attended
	FROM session_outcomes o
	JOIN sessions s ON s.id = o.session_id
	WHERE o.user_id = $1
	  AND s.status = 'completed'
	  AND s.scheduled_time >= now() - ($2 * interval '1 day')
	ORDER BY s.scheduled_time
	`
	rows, err := p.pool.Query(ctx, q, userID, windowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes for user %s: %w", userID, err)
	}
	defer rows.Close()

	var outcomes []models.SessionOutcome
	for rows.Next() {
		var o models.SessionOutcome
		if err := rows.Scan(&o.SessionID, &o.Attended); err != nil {
			return nil, fmt.Errorf("failed to scan session outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (p *Postgres) GetReliabilityProfile(ctx context.Context, userID uuid.UUID) (models.UserReliabilityProfile, error) {
	var prof models.UserReliabilityProfile
	q := `
	SELECT user_id, rolling_score, sample_count
	FROM reliability_profiles
	WHERE user_id = $1
	`
	err := p.pool.QueryRow(ctx, q, userID).Scan(
		&prof.UserID, &prof.RollingScore, &prof.SampleCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.UserReliabilityProfile{}, models.ErrNotFound
	}
	if err != nil {
		return models.UserReliabilityProfile{}, fmt.Errorf("failed to get reliability profile for %s: %w", userID, err)
	}
	return prof, nil
}

func (p *Postgres) PutReliabilityProfile(ctx context.Context, profile models.UserReliabilityProfile) error {
	q := `
	INSERT INTO reliability_profiles (user_id, rolling_score, sample_count)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id) DO UPDATE
	SET rolling_score = EXCLUDED.rolling_score,
	    sample_count = EXCLUDED.sample_count
	`
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, profile.UserID, profile.RollingScore, profile.SampleCount)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to put reliability profile: %w", err)
	}
	return nil
}

func (p *Postgres) GetSquadActivity(ctx context.Context, squadID uuid.UUID, windowDays int) ([]models.SquadMemberActivity, error) {
	q := `
	SELECT m.user_id, m.role,
	       count(*) FILTER (WHERE s.organizer_id = m.user_id) AS organized,
	       count(*) AS proposed,
	       count(*) FILTER (
	           WHERE ar.responded_at IS NOT NULL
	             AND ar.responded_at <= s.created_at + interval '24 hours'
	       ) AS responded_in_time
	FROM squad_members m
	JOIN sessions s ON s.squad_id = m.squad_id
	LEFT JOIN attendance_records ar
	       ON ar.session_id = s.id AND ar.user_id = m.user_id
	WHERE m.squad_id = $1
	  AND s.scheduled_time >= now() - ($2 * interval '1 day')
	GROUP BY m.user_id, m.role
	`
	rows, err := p.pool.Query(ctx, q, squadID, windowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query squad activity for %s: %w", squadID, err)
	}
	defer rows.Close()

	var activity []models.SquadMemberActivity
	for rows.Next() {
		var a models.SquadMemberActivity
		if err := rows.Scan(
			&a.UserID, &a.Role, &a.SessionsOrganized, &a.SessionsProposed, &a.RespondedInTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan squad activity: %w", err)
		}
		activity = append(activity, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(activity) == 0 {
		return nil, models.ErrNotFound
	}
	return activity, nil
}
