package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/parley/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/parley.db". The special path
// ":memory:" opens an in-memory database (used by tests).
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/parley.db"
	}

	dsn := dbPath + "?_journal_mode=WAL&_foreign_keys=on"
	if dbPath == ":memory:" {
		dsn = ":memory:"
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// database/sql would otherwise open a fresh empty database per
		// connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		nickname TEXT DEFAULT '',
		avatar_url TEXT DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		from_user TEXT NOT NULL,
		to_user TEXT NOT NULL,
		body TEXT NOT NULL,
		ts INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS roster (
		owner TEXT NOT NULL,
		peer TEXT NOT NULL,
		peer_nickname TEXT DEFAULT '',
		peer_avatar TEXT DEFAULT '',
		last_message TEXT DEFAULT '',
		last_message_ts INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner, peer)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_from_to_ts ON messages(from_user, to_user, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_to_from_ts ON messages(to_user, from_user, ts);
	CREATE INDEX IF NOT EXISTS idx_roster_owner ON roster(owner);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record with the given bcrypt hash.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash, nickname string) (*models.User, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, nickname, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, username, nickname, passwordHash, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}

	return s.GetUser(ctx, username)
}

// GetUser retrieves a user by username.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, nickname, avatar_url, password_hash, created_at
		FROM users WHERE username = ?
	`, username).Scan(
		&user.ID,
		&user.Username,
		&user.Nickname,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile updates a user's display fields.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, username, nickname, avatarURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET nickname = ?, avatar_url = ? WHERE username = ?
	`, nickname, avatarURL, username)
	return err
}

// CountUsers returns the total number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// AppendMessage persists a message with a server-assigned ULID.
// ULIDs are monotonic within a millisecond source, so lexical id order
// matches insertion order for timestamp ties.
func (s *SQLiteStore) AppendMessage(ctx context.Context, from, to, body string, ts time.Time) (*models.Message, error) {
	msg := &models.Message{
		ID:        ulid.Make().String(),
		From:      from,
		To:        to,
		Body:      body,
		Timestamp: ts.UnixMilli(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, from_user, to_user, body, ts)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.From, msg.To, msg.Body, msg.Timestamp)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetConversation returns up to limit of the most recent messages between
// the unordered pair (a, b), oldest first.
func (s *SQLiteStore) GetConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_user, to_user, body, ts FROM (
			SELECT id, from_user, to_user, body, ts
			FROM messages
			WHERE (from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)
			ORDER BY ts DESC, id DESC
			LIMIT ?
		) ORDER BY ts ASC, id ASC
	`, a, b, b, a, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.From, &msg.To, &msg.Body, &msg.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpsertRosterEntry inserts or refreshes the cached display fields for the
// (owner, peer) row. Last-message fields are left untouched.
func (s *SQLiteStore) UpsertRosterEntry(ctx context.Context, owner, peer, nickname, avatar string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roster (owner, peer, peer_nickname, peer_avatar, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner, peer) DO UPDATE SET
			peer_nickname = excluded.peer_nickname,
			peer_avatar = excluded.peer_avatar
	`, owner, peer, nickname, avatar, time.Now().UTC())
	return err
}

// RecordExchange sets the last-message fields on the (owner, peer) row,
// creating the row first if absent.
func (s *SQLiteStore) RecordExchange(ctx context.Context, owner, peer, body string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roster (owner, peer, last_message, last_message_ts, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner, peer) DO UPDATE SET
			last_message = excluded.last_message,
			last_message_ts = excluded.last_message_ts
	`, owner, peer, body, ts.UnixMilli(), time.Now().UTC())
	return err
}

// ListRoster returns the owner's roster ordered by last message time
// descending; rows with no last message sort after all rows that have one,
// ties broken by creation time descending.
func (s *SQLiteStore) ListRoster(ctx context.Context, owner string) ([]models.RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, peer, peer_nickname, peer_avatar, last_message, last_message_ts, created_at
		FROM roster
		WHERE owner = ?
		ORDER BY last_message_ts IS NULL ASC, last_message_ts DESC, created_at DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.RosterEntry{}
	for rows.Next() {
		var entry models.RosterEntry
		if err := rows.Scan(
			&entry.Owner,
			&entry.Peer,
			&entry.PeerNickname,
			&entry.PeerAvatar,
			&entry.LastMessage,
			&entry.LastMessageTime,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
