package ws

// Inbound is the payload a client sends over its channel. Any sender field
// a client might embed is ignored; the channel's bound identity is the
// only authoritative sender.
type Inbound struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Event is the single structured schema for everything the server pushes
// over a channel. Presence notices use the same shape as message events.
type Event struct {
	Type         string `json:"type"` // "message", "sent", "error", "presence"
	From         string `json:"from,omitempty"`
	FromNickname string `json:"from_nickname,omitempty"`
	FromPfp      string `json:"from_pfp,omitempty"`
	To           string `json:"to,omitempty"`
	User         string `json:"user,omitempty"`   // presence subject
	Status       string `json:"status,omitempty"` // "online" or "offline"
	Message      string `json:"message,omitempty"`
	Kind         string `json:"kind,omitempty"` // error classification
	Timestamp    int64  `json:"timestamp,omitempty"`
}

// Error kinds reported to senders. Faults are typed at the boundary and
// never terminate the channel.
const (
	ErrKindMalformed = "malformed"
	ErrKindOffline   = "offline"
	ErrKindStorage   = "storage_error"
)

// MessageEvent is what the receiver of a direct message sees.
func MessageEvent(from, nickname, avatar, body string, ts int64) Event {
	return Event{
		Type:         "message",
		From:         from,
		FromNickname: nickname,
		FromPfp:      avatar,
		Message:      body,
		Timestamp:    ts,
	}
}

// SentEvent confirms delivery handling to the sender.
func SentEvent(to, body string, ts int64) Event {
	return Event{Type: "sent", To: to, Message: body, Timestamp: ts}
}

// ErrorEvent reports a typed fault to the sender.
func ErrorEvent(kind, message string) Event {
	return Event{Type: "error", Kind: kind, Message: message}
}

// PresenceEvent announces a join or leave to other connected identities.
func PresenceEvent(user, status string, ts int64) Event {
	return Event{Type: "presence", User: user, Status: status, Timestamp: ts}
}
