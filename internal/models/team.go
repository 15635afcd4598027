package models

// Team represents a team entity. LeaderID is nil when the team is leaderless.
type Team struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	LeaderID  *int64       `json:"leader_id"`
	CreatedAt int64        `json:"created_at"`
	Members   []TeamMember `json:"members,omitempty"`
}

// Leaderless reports whether the team has no leader.
func (t Team) Leaderless() bool {
	return t.LeaderID == nil
}

// IsLeader reports whether userID is the team's current leader.
func (t Team) IsLeader(userID int64) bool {
	return t.LeaderID != nil && *t.LeaderID == userID
}

// TeamMember represents a team membership. JoinedAt orders leadership succession.
type TeamMember struct {
	ID       int64  `json:"-"`
	TeamID   int64  `json:"team_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	JoinedAt int64  `json:"joined_at"`
}

// Succession describes the outcome of removing a member from a team.
type Succession struct {
	TeamID         int64  `json:"team_id"`
	RemovedUserID  int64  `json:"removed_user_id"`
	WasLeader      bool   `json:"was_leader"`
	NewLeaderID    *int64 `json:"new_leader_id"`
	RemainingCount int    `json:"remaining_count"`
}

// Leaderless reports whether the removal left the team without a leader.
func (s Succession) Leaderless() bool {
	return s.WasLeader && s.NewLeaderID == nil
}
