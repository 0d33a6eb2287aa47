package store

import (
	"context"
	"errors"
	"time"

	"github.com/eldtechnologies/parley/internal/models"
)

var (
	// ErrDuplicateUser is returned when a username is already registered.
	ErrDuplicateUser = errors.New("username already registered")
)

// DefaultHistoryLimit caps how many messages a conversation fetch returns.
const DefaultHistoryLimit = 50

// DataStore defines the interface for persistent storage of users,
// messages, and roster entries. Both PostgresStore and SQLiteStore
// implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations. GetUser returns (nil, nil) for an unknown username.
	CreateUser(ctx context.Context, username, passwordHash, nickname string) (*models.User, error)
	GetUser(ctx context.Context, username string) (*models.User, error)
	UpdateProfile(ctx context.Context, username, nickname, avatarURL string) error
	CountUsers(ctx context.Context) (int64, error)

	// Message operations. AppendMessage assigns the ID and never mutates
	// existing rows. GetConversation returns at most limit of the most
	// recent messages between the unordered pair (a, b) in ascending
	// timestamp order, ties broken by id.
	AppendMessage(ctx context.Context, from, to, body string, ts time.Time) (*models.Message, error)
	GetConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error)

	// Roster operations. UpsertRosterEntry touches only the cached display
	// fields; RecordExchange owns the last-message fields and creates the
	// row first if absent. Both are idempotent per (owner, peer).
	UpsertRosterEntry(ctx context.Context, owner, peer, nickname, avatar string) error
	RecordExchange(ctx context.Context, owner, peer, body string, ts time.Time) error
	ListRoster(ctx context.Context, owner string) ([]models.RosterEntry, error)
}
