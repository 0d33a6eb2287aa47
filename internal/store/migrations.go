package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// RunMigrations applies the PostgreSQL schema. Statements are idempotent,
// so repeated runs are safe.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		nickname TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		from_user TEXT NOT NULL,
		to_user TEXT NOT NULL,
		body TEXT NOT NULL,
		ts BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS roster (
		owner TEXT NOT NULL,
		peer TEXT NOT NULL,
		peer_nickname TEXT NOT NULL DEFAULT '',
		peer_avatar TEXT NOT NULL DEFAULT '',
		last_message TEXT NOT NULL DEFAULT '',
		last_message_ts BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (owner, peer)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_from_to_ts ON messages(from_user, to_user, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_to_from_ts ON messages(to_user, from_user, ts);
	CREATE INDEX IF NOT EXISTS idx_roster_owner ON roster(owner);
	`

	_, err = conn.Exec(ctx, schema)
	return err
}
