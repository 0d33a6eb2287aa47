package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/parley/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Token auth makes the channel identity-bound regardless of origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS admits a websocket channel. The bearer token travels as the
// "token" query parameter or the session cookie; a rejected token gets a
// policy-violation close before any registry state is touched.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			tok = cookie.Value
		}
	}

	identity, verifyErr := h.issuer.Verify(tok)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	if verifyErr != nil {
		deadline := time.Now().Add(5 * time.Second)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
		return
	}

	client := ws.NewClient(identity, conn, h.registry, h.router, h.logger)
	h.registry.Connect(identity, client)

	go client.WritePump()
	client.ReadPump()
}
