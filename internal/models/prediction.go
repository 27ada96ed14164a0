// internal/models/prediction.go
package models

import "github.com/google/uuid"

// RiskTier is the coarse bucketing of no-show probability.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Tier thresholds are shared by the predictor and any caller rendering the
// tier; they must not drift apart.
const (
	RiskHighThreshold   = 50
	RiskMediumThreshold = 25
)

// TierForProbability maps a probability to its risk tier.
func TierForProbability(probability int) RiskTier {
	switch {
	case probability >= RiskHighThreshold:
		return RiskHigh
	case probability >= RiskMediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// NoShowPrediction is a derived per-user risk value. Never persisted; always
// recomputed from the current roster and reliability profiles.
type NoShowPrediction struct {
	SessionID   uuid.UUID `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	Probability int       `json:"probability"`
	RiskTier    RiskTier  `json:"risk_tier"`
	Factors     []string  `json:"factors"`
}

// SessionRisk is the predictor's whole-session output.
type SessionRisk struct {
	SessionID     uuid.UUID          `json:"session_id"`
	PerUser       []NoShowPrediction `json:"per_user"`
	AggregateRisk int                `json:"aggregate_risk"`
}
