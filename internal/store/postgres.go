package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/parley/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record with the given bcrypt hash.
func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash, nickname string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, nickname, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, nickname, avatar_url, password_hash, created_at
	`, username, nickname, passwordHash).Scan(
		&user.ID,
		&user.Username,
		&user.Nickname,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by username.
func (s *PostgresStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, nickname, avatar_url, password_hash, created_at
		FROM users WHERE username = $1
	`, username).Scan(
		&user.ID,
		&user.Username,
		&user.Nickname,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile updates a user's display fields.
func (s *PostgresStore) UpdateProfile(ctx context.Context, username, nickname, avatarURL string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET nickname = $2, avatar_url = $3 WHERE username = $1
	`, username, nickname, avatarURL)
	return err
}

// CountUsers returns the total number of registered users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// AppendMessage persists a message with a server-assigned ULID.
func (s *PostgresStore) AppendMessage(ctx context.Context, from, to, body string, ts time.Time) (*models.Message, error) {
	msg := &models.Message{
		ID:        ulid.Make().String(),
		From:      from,
		To:        to,
		Body:      body,
		Timestamp: ts.UnixMilli(),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, from_user, to_user, body, ts)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.From, msg.To, msg.Body, msg.Timestamp)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetConversation returns up to limit of the most recent messages between
// the unordered pair (a, b), oldest first.
func (s *PostgresStore) GetConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, from_user, to_user, body, ts FROM (
			SELECT id, from_user, to_user, body, ts
			FROM messages
			WHERE (from_user = $1 AND to_user = $2) OR (from_user = $2 AND to_user = $1)
			ORDER BY ts DESC, id DESC
			LIMIT $3
		) recent ORDER BY ts ASC, id ASC
	`, a, b, limit)
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
func (s *PostgresStore) UpsertRosterEntry(ctx context.Context, owner, peer, nickname, avatar string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roster (owner, peer, peer_nickname, peer_avatar)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, peer) DO UPDATE SET
			peer_nickname = EXCLUDED.peer_nickname,
			peer_avatar = EXCLUDED.peer_avatar
	`, owner, peer, nickname, avatar)
	return err
}

// RecordExchange sets the last-message fields on the (owner, peer) row,
// creating the row first if absent.
func (s *PostgresStore) RecordExchange(ctx context.Context, owner, peer, body string, ts time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roster (owner, peer, last_message, last_message_ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, peer) DO UPDATE SET
			last_message = EXCLUDED.last_message,
			last_message_ts = EXCLUDED.last_message_ts
	`, owner, peer, body, ts.UnixMilli())
	return err
}

// ListRoster returns the owner's roster ordered by recency.
func (s *PostgresStore) ListRoster(ctx context.Context, owner string) ([]models.RosterEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner, peer, peer_nickname, peer_avatar, last_message, last_message_ts, created_at
		FROM roster
		WHERE owner = $1
		ORDER BY last_message_ts DESC NULLS LAST, created_at DESC
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
