package models

import "time"

// RosterEntry is one cached conversation summary owned by Owner.
// Display fields are a snapshot of the peer's profile; last-message fields
// are owned by the message router and updated on every exchange.
type RosterEntry struct {
	Owner           string    `json:"-"`
	Peer            string    `json:"peer"`
	PeerNickname    string    `json:"nickname,omitempty"`
	PeerAvatar      string    `json:"avatar,omitempty"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageTime *int64    `json:"last_message_ts,omitempty"` // Unix ms, nil before first exchange
	CreatedAt       time.Time `json:"created_at"`
}
