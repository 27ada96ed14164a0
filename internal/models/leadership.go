// internal/models/leadership.go
package models

import "github.com/google/uuid"

// SquadRole is a member's current role within a squad.
type SquadRole string

const (
	RoleMember   SquadRole = "member"
	RoleCoLeader SquadRole = "co_leader"
	RoleLeader   SquadRole = "leader"
)

// Quality is a display tag for a leadership trait.
type Quality struct {
	Icon string `json:"icon"`
	Name string `json:"name"`
}

// LeadershipCandidate is a derived ranking entry for one squad member.
type LeadershipCandidate struct {
	UserID          uuid.UUID `json:"user_id"`
	LeadershipScore int       `json:"leadership_score"`
	Qualities       []Quality `json:"qualities"`
	CurrentRole     SquadRole `json:"current_role"`
	Recommendation  string    `json:"recommendation"`
}

// LeaderBoard partitions ranked candidates into members who already hold a
// leadership role and members who score highly without one.
type LeaderBoard struct {
	SquadID          uuid.UUID             `json:"squad_id"`
	CurrentLeaders   []LeadershipCandidate `json:"current_leaders"`
	PotentialLeaders []LeadershipCandidate `json:"potential_leaders"`
}

// SquadMemberActivity is one member's trailing-window participation history,
// the ranker's raw input. Assembled by the record store from completed
// sessions within the window.
type SquadMemberActivity struct {
	UserID            uuid.UUID `json:"user_id"`
	Role              SquadRole `json:"role"`
	SessionsOrganized int       `json:"sessions_organized"`
	SessionsProposed  int       `json:"sessions_proposed"`
	RespondedInTime   int       `json:"responded_in_time"`
}
