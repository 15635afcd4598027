package models

// Notification types emitted by this service.
const (
	NotificationTeamCreated   = "team_created"
	NotificationTeamJoined    = "team_joined"
	NotificationLeaderChanged = "leader_changed"
)

// Notification belongs to exactly one recipient.
type Notification struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt int64  `json:"created_at"`
}
