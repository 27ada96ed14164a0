// internal/models/reliability.go
package models

import "github.com/google/uuid"

// DefaultReliability is the optimistic prior for users with no recorded
// outcomes yet.
const DefaultReliability = 100.0

// UserReliabilityProfile is the rolling 0-100 trust metric derived from a
// user's historical attend/no-show outcomes. Mutated only by the reliability
// scorer, exactly once per (user, completed session).
type UserReliabilityProfile struct {
	UserID       uuid.UUID `json:"user_id"`
	RollingScore float64   `json:"rolling_score"`
	SampleCount  int       `json:"sample_count"`
}
