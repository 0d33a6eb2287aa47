// Package parley is a minimal client for the parley server: log in with
// username and password, open the realtime channel, and exchange direct
// messages.
package parley

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Event mirrors the server's structured channel events.
type Event struct {
	Type         string `json:"type"` // "message", "sent", "error", "presence"
	From         string `json:"from,omitempty"`
	FromNickname string `json:"from_nickname,omitempty"`
	FromPfp      string `json:"from_pfp,omitempty"`
	To           string `json:"to,omitempty"`
	User         string `json:"user,omitempty"`
	Status       string `json:"status,omitempty"`
	Message      string `json:"message,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
}

// Client talks to a parley server.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewClient creates a client for the server at baseURL,
// e.g. "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login authenticates and stores the bearer token for subsequent calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: %s", resp.Status)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return err
	}
	c.token = tr.AccessToken
	return nil
}

// Token returns the bearer token obtained by Login.
func (c *Client) Token() string {
	return c.token
}

// Connect opens the realtime channel. Events arrive on Session.Events
// until the session is closed.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	if c.token == "" {
		return nil, fmt.Errorf("not logged in")
	}

	wsURL, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch wsURL.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	}
	q := wsURL.Query()
	q.Set("token", c.token)
	wsURL.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:   conn,
		events: make(chan Event, 64),
	}
	go s.readLoop()
	return s, nil
}

// Session is one open realtime channel.
type Session struct {
	conn   *websocket.Conn
	events chan Event
}

// Events returns the channel of server events. It is closed when the
// session ends.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Send delivers a direct message to another identity.
func (s *Session) Send(to, message string) error {
	return s.conn.WriteJSON(map[string]string{
		"to":      to,
		"message": message,
	})
}

// Close shuts the channel down.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) readLoop() {
	defer close(s.events)
	for {
		var ev Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			return
		}
		s.events <- ev
	}
}
