package sidesync

import "time"

// User represents a basic user of sidesync. They can be members
// of multiple teams, channels, direct messages, etc.
type User struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Password    []byte    `json:"-"`
	ProfileImg  string    `json:"profile_image"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"last_seen"`
}

// Presence reports whether a user is currently connected.
type Presence struct {
	UserID   int64     `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}
