// internal/leadership/ranker.go

// Package leadership ranks squad members by leadership signal over a
// trailing activity window. Like the predictor it is pure: the service layer
// feeds it activity history and reliability scores, and it returns a stable
// ranking; weights are package constants so results never flicker between
// refreshes with the same input data.
package leadership

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/models"
)

// WindowDays is the trailing activity window the ranker's inputs cover.
const WindowDays = 90

// Signal weights. They must sum to 1.
const (
	organizationWeight = 0.40
	consistencyWeight  = 0.30
	reliabilityWeight  = 0.30
)

// organizedCap is the organization count that maps to a full 100 signal;
// organizing more sessions than this inside the window saturates the signal.
const organizedCap = 10

// PotentialThreshold is the minimum score for a plain member to surface as a
// potential leader.
const PotentialThreshold = 50

type signal struct {
	name    string
	value   float64
	quality models.Quality
	phrase  string
}

// Rank computes the leadership board for a squad from its members' trailing
// activity and reliability scores. Missing reliability entries default to
// the optimistic prior.
func Rank(squadID uuid.UUID, activity []models.SquadMemberActivity, reliability map[uuid.UUID]float64) models.LeaderBoard {
	board := models.LeaderBoard{SquadID: squadID}

	for _, member := range activity {
		rel, ok := reliability[member.UserID]
		if !ok {
			rel = models.DefaultReliability
		}
		candidate := scoreMember(member, rel)

		if member.Role == models.RoleLeader || member.Role == models.RoleCoLeader {
			board.CurrentLeaders = append(board.CurrentLeaders, candidate)
		} else if candidate.LeadershipScore >= PotentialThreshold {
			board.PotentialLeaders = append(board.PotentialLeaders, candidate)
		}
	}

	sortCandidates(board.CurrentLeaders)
	sortCandidates(board.PotentialLeaders)
	return board
}

func scoreMember(member models.SquadMemberActivity, reliability float64) models.LeadershipCandidate {
	organization := clamp(float64(member.SessionsOrganized)/organizedCap*100, 0, 100)

	consistency := 0.0
	if member.SessionsProposed > 0 {
		consistency = clamp(float64(member.RespondedInTime)/float64(member.SessionsProposed)*100, 0, 100)
	}

	rel := clamp(reliability, 0, 100)

	score := int(math.Round(
		organization*organizationWeight +
			consistency*consistencyWeight +
			rel*reliabilityWeight,
	))

	signals := []signal{
		{
			name:    "organization",
			value:   organization,
			quality: models.Quality{Icon: "calendar", Name: "Organizer"},
			phrase:  fmt.Sprintf("organized %d sessions in the last %d days", member.SessionsOrganized, WindowDays),
		},
		{
			name:    "consistency",
			value:   consistency,
			quality: models.Quality{Icon: "bolt", Name: "Responsive"},
			phrase:  fmt.Sprintf("responded promptly to %d of %d sessions", member.RespondedInTime, member.SessionsProposed),
		},
		{
			name:    "reliability",
			value:   rel,
			quality: models.Quality{Icon: "shield", Name: "Reliable"},
			phrase:  fmt.Sprintf("holds a %.0f reliability score", rel),
		},
	}
	// Stable ordering: by value descending, original order on ties, so the
	// same inputs always produce the same qualities and recommendation.
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].value > signals[j].value
	})

	var qualities []models.Quality
	for _, s := range signals {
		if s.value >= 50 {
			qualities = append(qualities, s.quality)
		}
	}

	return models.LeadershipCandidate{
		UserID:          member.UserID,
		LeadershipScore: score,
		Qualities:       qualities,
		CurrentRole:     member.Role,
		Recommendation:  recommendation(signals),
	}
}

// recommendation templates a short explanation from the top one or two
// contributing signals.
func recommendation(ranked []signal) string {
	if len(ranked) == 0 || ranked[0].value == 0 {
		return "Not enough recent activity to assess leadership."
	}
	if len(ranked) > 1 && ranked[1].value >= 50 {
		return fmt.Sprintf("Strong candidate: %s and %s.", ranked[0].phrase, ranked[1].phrase)
	}
	return fmt.Sprintf("Shows leadership: %s.", ranked[0].phrase)
}

func sortCandidates(cands []models.LeadershipCandidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].LeadershipScore != cands[j].LeadershipScore {
			return cands[i].LeadershipScore > cands[j].LeadershipScore
		}
		return cands[i].UserID.String() < cands[j].UserID.String()
	})
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
