package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCreateUserAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice", "hash", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Username != "alice" || user.Nickname != "Alice" || user.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", user)
	}

	got, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("expected same user back, got %+v", got)
	}

	missing, err := s.GetUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("get missing user: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown user, got %+v", missing)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "hash", ""); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := s.CreateUser(ctx, "alice", "other", "")
	if !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}

	count, err := s.CountUsers(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}
}

func TestUpdateProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "hash", "Alice"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.UpdateProfile(ctx, "alice", "Ally", "https://cdn/a.png"); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	user, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Nickname != "Ally" || user.AvatarURL != "https://cdn/a.png" {
		t.Fatalf("profile not updated: %+v", user)
	}
}

func TestConversationOrderingAndPairSymmetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = "bob", "alice"
		}
		if _, err := s.AppendMessage(ctx, from, to, fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// Unrelated traffic must not leak into the pair query.
	if _, err := s.AppendMessage(ctx, "alice", "carol", "other", base); err != nil {
		t.Fatalf("append: %v", err)
	}

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		msgs, err := s.GetConversation(ctx, pair[0], pair[1], 50)
		if err != nil {
			t.Fatalf("get conversation: %v", err)
		}
		if len(msgs) != 5 {
			t.Fatalf("expected 5 messages for %v, got %d", pair, len(msgs))
		}
		for i := 1; i < len(msgs); i++ {
			if msgs[i].Timestamp < msgs[i-1].Timestamp {
				t.Fatalf("timestamps not non-decreasing: %d before %d", msgs[i-1].Timestamp, msgs[i].Timestamp)
			}
		}
		if msgs[0].Body != "msg 0" || msgs[4].Body != "msg 4" {
			t.Fatalf("unexpected order: first=%q last=%q", msgs[0].Body, msgs[4].Body)
		}
	}
}

func TestConversationTimestampTiesBrokenByInsertion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts := time.Now().UTC()
	for i := 0; i < 4; i++ {
		if _, err := s.AppendMessage(ctx, "alice", "bob", fmt.Sprintf("tie %d", i), ts); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.GetConversation(ctx, "alice", "bob", 50)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	for i, msg := range msgs {
		if msg.Body != fmt.Sprintf("tie %d", i) {
			t.Fatalf("insertion order not preserved at %d: got %q", i, msg.Body)
		}
	}
}

func TestConversationCapReturnsMostRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 60; i++ {
		if _, err := s.AppendMessage(ctx, "alice", "bob", fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Millisecond)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.GetConversation(ctx, "alice", "bob", 0)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(msgs) != DefaultHistoryLimit {
		t.Fatalf("expected %d messages, got %d", DefaultHistoryLimit, len(msgs))
	}
	// The cap keeps the most recent messages, still oldest first.
	if msgs[0].Body != "msg 10" || msgs[len(msgs)-1].Body != "msg 59" {
		t.Fatalf("unexpected window: first=%q last=%q", msgs[0].Body, msgs[len(msgs)-1].Body)
	}
}

func TestRosterUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.UpsertRosterEntry(ctx, "alice", "bob", "Bob", "b.png"); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	entries, err := s.ListRoster(ctx, "alice")
	if err != nil {
		t.Fatalf("list roster: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Peer != "bob" || entries[0].PeerNickname != "Bob" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if entries[0].LastMessageTime != nil {
		t.Fatalf("display upsert must not touch last-message fields: %+v", entries[0])
	}
}

func TestRecordExchangeCreatesAndUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := time.Now().UTC()
	if err := s.RecordExchange(ctx, "alice", "bob", "hi", first); err != nil {
		t.Fatalf("record exchange: %v", err)
	}

	second := first.Add(time.Minute)
	if err := s.RecordExchange(ctx, "alice", "bob", "there", second); err != nil {
		t.Fatalf("record exchange: %v", err)
	}

	entries, err := s.ListRoster(ctx, "alice")
	if err != nil {
		t.Fatalf("list roster: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.LastMessage != "there" {
		t.Fatalf("expected last message %q, got %q", "there", entry.LastMessage)
	}
	if entry.LastMessageTime == nil || *entry.LastMessageTime != second.UnixMilli() {
		t.Fatalf("unexpected last message time: %+v", entry.LastMessageTime)
	}
}

func TestRosterDisplayAndExchangeAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts := time.Now().UTC()
	if err := s.RecordExchange(ctx, "alice", "bob", "hi", ts); err != nil {
		t.Fatalf("record exchange: %v", err)
	}
	if err := s.UpsertRosterEntry(ctx, "alice", "bob", "Bob", "b.png"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entries, err := s.ListRoster(ctx, "alice")
	if err != nil {
		t.Fatalf("list roster: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].PeerNickname != "Bob" || entries[0].LastMessage != "hi" {
		t.Fatalf("expected both display and exchange fields set: %+v", entries[0])
	}
}

func TestListRosterOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()

	// carol: no exchange yet, created last
	// bob: exchanged most recently
	// dave: exchanged earlier
	if err := s.RecordExchange(ctx, "alice", "dave", "old", base); err != nil {
		t.Fatalf("record exchange: %v", err)
	}
	if err := s.RecordExchange(ctx, "alice", "bob", "new", base.Add(time.Hour)); err != nil {
		t.Fatalf("record exchange: %v", err)
	}
	if err := s.UpsertRosterEntry(ctx, "alice", "carol", "Carol", ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entries, err := s.ListRoster(ctx, "alice")
	if err != nil {
		t.Fatalf("list roster: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	want := []string{"bob", "dave", "carol"}
	for i, peer := range want {
		if entries[i].Peer != peer {
			t.Fatalf("position %d: expected %q, got %q", i, peer, entries[i].Peer)
		}
	}
}

func TestListRosterEmpty(t *testing.T) {
	s := newTestStore(t)

	entries, err := s.ListRoster(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("list roster: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty roster, got %d entries", len(entries))
	}
}
