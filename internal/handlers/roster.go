package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/parley/internal/api/middleware"
	"github.com/eldtechnologies/parley/internal/models"
)

// RosterResponse represents the chat roster response.
type RosterResponse struct {
	Chats []models.RosterEntry `json:"chats"`
}

// UpsertChatRequest represents an explicit roster upsert from the
// profile UI.
type UpsertChatRequest struct {
	Peer     string `json:"peer"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// ListChats returns the caller's roster ordered by recency.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	entries, err := h.store.ListRoster(r.Context(), identity)
	if err != nil {
		h.logger.Error().Err(err).Msg("roster fetch failed")
		h.Error(w, http.StatusInternalServerError, "failed to fetch chats")
		return
	}

	h.JSON(w, http.StatusOK, RosterResponse{Chats: entries})
}

// UpsertChat creates or refreshes a roster entry for the caller. Only the
// cached display fields are touched; last-message fields stay router-owned.
// The operation is idempotent.
func (h *Handler) UpsertChat(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req UpsertChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Peer == "" {
		h.Error(w, http.StatusBadRequest, "peer is required")
		return
	}

	peer, err := h.store.GetUser(r.Context(), req.Peer)
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if peer == nil {
		h.Error(w, http.StatusNotFound, "peer does not exist")
		return
	}

	// An omitted snapshot falls back to the peer's current profile.
	nickname := sanitizeNickname(req.Nickname)
	avatar := req.Avatar
	if nickname == "" {
		nickname = peer.DisplayName()
	}
	if avatar == "" {
		avatar = peer.AvatarURL
	}

	if err := h.store.UpsertRosterEntry(r.Context(), identity, req.Peer, nickname, avatar); err != nil {
		h.logger.Error().Err(err).Msg("roster upsert failed")
		h.Error(w, http.StatusInternalServerError, "failed to update chats")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
