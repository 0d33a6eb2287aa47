package models

import "time"

// User represents a registered account. The username doubles as the
// identity key used for routing and persistence.
type User struct {
	ID           int64     `json:"-"`
	Username     string    `json:"username"`
	Nickname     string    `json:"nickname,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName returns the nickname, falling back to the username.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
