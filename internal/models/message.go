package models

// Message represents one direct message. Append-only; the server assigns
// ID and Timestamp on receipt, never the client.
type Message struct {
	ID        string `json:"id"`   // ULID, lexically ordered by creation
	From      string `json:"from"` // sender username
	To        string `json:"to"`   // receiver username
	Body      string `json:"body"`
	Timestamp int64  `json:"ts"` // Unix ms
}
