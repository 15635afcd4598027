package models

// TeamMessage is a chat message in a team channel. Only IsPinned is mutable.
// Username and Avatar are joined from the author's user record.
type TeamMessage struct {
	ID        int64  `json:"id"`
	TeamID    int64  `json:"team_id"`
	UserID    int64  `json:"user_id"`
	Content   string `json:"content"`
	IsPinned  bool   `json:"is_pinned"`
	CreatedAt int64  `json:"created_at"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
}
