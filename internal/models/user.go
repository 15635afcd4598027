package models

// User is the identity record owned by the credential collaborator. This
// service only reads it.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
	CreatedAt int64  `json:"created_at"`
}

// Identity is the user bound to an authenticated connection or request.
// It never changes for the lifetime of a connection.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// IdentityOf builds the identity for a stored user.
func IdentityOf(u User) Identity {
	return Identity{UserID: u.ID, Username: u.Username, Email: u.Email}
}
