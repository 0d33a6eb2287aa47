package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parley/internal/api/middleware"
	"github.com/eldtechnologies/parley/internal/chat"
	"github.com/eldtechnologies/parley/internal/store"
	"github.com/eldtechnologies/parley/internal/token"
	"github.com/eldtechnologies/parley/internal/ws"
)

type testEnv struct {
	handler *Handler
	store   store.DataStore
	issuer  *token.Issuer
	router  *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)

	logger := zerolog.Nop()
	issuer := token.NewIssuer([]byte("test-secret"))
	registry := ws.NewRegistry(logger)
	msgRouter := chat.NewRouter(s, registry, logger)
	h := NewHandler(s, nil, issuer, registry, msgRouter, logger, time.Hour)

	auth := middleware.NewAuthMiddleware(issuer)
	r := chi.NewRouter()
	r.Post("/api/register", h.Register)
	r.Post("/api/login", h.LoginAPI)
	r.Post("/login", h.LoginSession)
	r.Get("/logout", h.Logout)
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Get("/api/history/{peer}", h.History)
		r.Get("/api/chats", h.ListChats)
		r.Post("/api/chats", h.UpsertChat)
		r.Put("/api/profile", h.UpdateProfile)
	})

	return &testEnv{handler: h, store: s, issuer: issuer, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, username, password, nickname string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: username,
		Password: password,
		Nickname: nickname,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/login", "", LoginRequest{
		Username: username,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"short username", RegisterRequest{Username: "ab", Password: "password1"}},
		{"bad characters", RegisterRequest{Username: "al ice", Password: "password1"}},
		{"short password", RegisterRequest{Username: "alice", Password: "short"}},
	}
	for _, tc := range cases {
		rec := env.do(t, http.MethodPost, "/api/register", "", tc.req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
}

func TestRegisterDuplicateConflict(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "password1", "")

	rec := env.do(t, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: "alice",
		Password: "password2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate, got %d", rec.Code)
	}
}

func TestLoginFlows(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "password1", "Alice")

	// Unknown user
	rec := env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "ghost", Password: "password1"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}

	// Wrong password
	rec = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "wrong-password"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad password, got %d", rec.Code)
	}

	// Success; the token decodes to the authenticated identity.
	tok := env.login(t, "alice", "password1")
	identity, err := env.issuer.Verify(tok)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if identity != "alice" {
		t.Fatalf("token bound to %q, expected alice", identity)
	}
}

func TestLoginSessionSetsCookie(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "password1", "")

	rec := env.do(t, http.MethodPost, "/login", "", LoginRequest{Username: "alice", Password: "password1"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
	if _, err := env.issuer.Verify(cookie.Value); err != nil {
		t.Fatalf("cookie token invalid: %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/chats", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/chats", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with junk token, got %d", rec.Code)
	}
}

func TestHistoryEnrichment(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "password1", "Alice")
	env.register(t, "bob", "password1", "Bob")
	tok := env.login(t, "alice", "password1")

	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = "bob", "alice"
		}
		if _, err := env.store.AppendMessage(ctx, from, to, fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/history/bob", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status %d: %s", rec.Code, rec.Body.String())
	}

	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(resp.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(resp.Messages))
	}
	for i, msg := range resp.Messages {
		if msg.Message != fmt.Sprintf("msg %d", i) {
			t.Fatalf("wrong order at %d: %q", i, msg.Message)
		}
	}
	first := resp.Messages[0]
	if first.FromNickname != "Alice" || first.ToNickname != "Bob" {
		t.Fatalf("missing display enrichment: %+v", first)
	}
}

func TestChatsUpsertAndList(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "password1", "")
	env.register(t, "bob", "password1", "Bobby")
	tok := env.login(t, "alice", "password1")

	// Unknown peer is a 404 and creates nothing.
	rec := env.do(t, http.MethodPost, "/api/chats", tok, UpsertChatRequest{Peer: "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown peer, got %d", rec.Code)
	}

	// Upsert twice: idempotent, snapshot defaults to the peer's profile.
	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPost, "/api/chats", tok, UpsertChatRequest{Peer: "bob"})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("upsert chat: status %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec = env.do(t, http.MethodGet, "/api/chats", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list chats: status %d", rec.Code)
	}
	var resp RosterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode chats: %v", err)
	}
	if len(resp.Chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(resp.Chats))
	}
	if resp.Chats[0].Peer != "bob" || resp.Chats[0].PeerNickname != "Bobby" {
		t.Fatalf("unexpected chat entry: %+v", resp.Chats[0])
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "password1", "")
	tok := env.login(t, "alice", "password1")

	rec := env.do(t, http.MethodPut, "/api/profile", tok, UpdateProfileRequest{
		Nickname:  "Ally",
		AvatarURL: "https://cdn/a.png",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("update profile: status %d: %s", rec.Code, rec.Body.String())
	}

	user, err := env.store.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Nickname != "Ally" || user.AvatarURL != "https://cdn/a.png" {
		t.Fatalf("profile not updated: %+v", user)
	}
}
