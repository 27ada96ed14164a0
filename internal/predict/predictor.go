// internal/predict/predictor.go

// Package predict turns current commitment plus reliability history into an
// explainable no-show risk percentage. Everything here is pure: no side
// effects, no error paths; malformed inputs are clamped before use so the
// predictor never blocks a caller.
package predict

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/models"
)

// Factor labels surfaced alongside a prediction.
const (
	FactorLowReliability    = "low reliability"
	FactorMediumReliability = "medium reliability"
	FactorUncertainResponse = "uncertain response"
	FactorReliableHistory   = "reliable history"
)

// Risk contributions. The bucket penalties capture coarse reliability bands;
// the continuous term widens the gap between borderline and clearly
// unreliable users inside a band.
const (
	lowReliabilityCutoff    = 70.0
	mediumReliabilityCutoff = 85.0
	lowReliabilityPenalty   = 40.0
	mediumReliabilityPen    = 20.0
	maybePenalty            = 35.0
	continuousWeight        = 0.3

	// probabilityCeiling keeps any single prediction from being reported as
	// a near-certainty; this is a heuristic model, not an oracle.
	probabilityCeiling = 95
	reliableFloor      = 10
)

// PredictUser scores one attendee's no-show risk from their response and
// rolling reliability score.
func PredictUser(response models.Response, reliabilityScore float64) models.NoShowPrediction {
	r := clamp(reliabilityScore, 0, 100)

	risk := 0.0
	var factors []string

	switch {
	case r < lowReliabilityCutoff:
		risk += lowReliabilityPenalty
		factors = append(factors, FactorLowReliability)
	case r < mediumReliabilityCutoff:
		risk += mediumReliabilityPen
		factors = append(factors, FactorMediumReliability)
	}

	if response == models.ResponseMaybe {
		risk += maybePenalty
		factors = append(factors, FactorUncertainResponse)
	}

	risk += math.Max(0, (100-r)*continuousWeight)

	probability := int(math.Round(clamp(risk, 0, probabilityCeiling)))

	if len(factors) == 0 && probability < reliableFloor {
		factors = append(factors, FactorReliableHistory)
	}

	return models.NoShowPrediction{
		Probability: probability,
		RiskTier:    models.TierForProbability(probability),
		Factors:     factors,
	}
}

// RosterEntry pairs a current response with the responder's reliability.
type RosterEntry struct {
	Record      models.AttendanceRecord
	Reliability float64
}

// PredictSession scores every yes/maybe responder on the roster. A "no"
// responder carries no no-show risk and is excluded entirely. PerUser is
// sorted by probability descending, ties by userId ascending; the aggregate
// is the rounded mean, or 0 for an empty set.
func PredictSession(sessionID uuid.UUID, entries []RosterEntry) models.SessionRisk {
	out := models.SessionRisk{SessionID: sessionID}

	for _, e := range entries {
		if e.Record.Response == models.ResponseNo || e.Record.Deleted {
			continue
		}
		p := PredictUser(e.Record.Response, e.Reliability)
		p.SessionID = e.Record.SessionID
		p.UserID = e.Record.UserID
		out.PerUser = append(out.PerUser, p)
	}

	sort.Slice(out.PerUser, func(i, j int) bool {
		if out.PerUser[i].Probability != out.PerUser[j].Probability {
			return out.PerUser[i].Probability > out.PerUser[j].Probability
		}
		return out.PerUser[i].UserID.String() < out.PerUser[j].UserID.String()
	})

	if len(out.PerUser) > 0 {
		sum := 0
		for _, p := range out.PerUser {
			sum += p.Probability
		}
		out.AggregateRisk = int(math.Round(float64(sum) / float64(len(out.PerUser))))
	}
	return out
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
