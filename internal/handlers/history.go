package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/parley/internal/api/middleware"
	"github.com/eldtechnologies/parley/internal/models"
	"github.com/eldtechnologies/parley/internal/store"
)

// HistoryMessage is one message enriched with both parties' current
// display snapshot.
type HistoryMessage struct {
	ID           string `json:"id"`
	From         string `json:"from"`
	FromNickname string `json:"from_nickname"`
	FromPfp      string `json:"from_pfp,omitempty"`
	To           string `json:"to"`
	ToNickname   string `json:"to_nickname"`
	ToPfp        string `json:"to_pfp,omitempty"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"ts"`
}

// HistoryResponse represents the conversation history response.
type HistoryResponse struct {
	Messages []HistoryMessage `json:"messages"`
}

// History returns up to the 50 most recent messages between the caller and
// a peer, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	peer := chi.URLParam(r, "peer")
	if peer == "" {
		h.Error(w, http.StatusBadRequest, "peer is required")
		return
	}

	msgs, err := h.store.GetConversation(r.Context(), identity, peer, store.DefaultHistoryLimit)
	if err != nil {
		h.logger.Error().Err(err).Str("peer", peer).Msg("history fetch failed")
		h.Error(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}

	// Display snapshots are current, not historical; a missing profile
	// falls back to the bare identity string.
	self := h.displaySnapshot(r, identity)
	other := h.displaySnapshot(r, peer)
	byName := map[string]*models.User{identity: self, peer: other}

	messages := make([]HistoryMessage, len(msgs))
	for i, msg := range msgs {
		from, to := byName[msg.From], byName[msg.To]
		if from == nil {
			from = &models.User{Username: msg.From}
		}
		if to == nil {
			to = &models.User{Username: msg.To}
		}
		messages[i] = HistoryMessage{
			ID:           msg.ID,
			From:         msg.From,
			FromNickname: from.DisplayName(),
			FromPfp:      from.AvatarURL,
			To:           msg.To,
			ToNickname:   to.DisplayName(),
			ToPfp:        to.AvatarURL,
			Message:      msg.Body,
			Timestamp:    msg.Timestamp,
		}
	}

	h.JSON(w, http.StatusOK, HistoryResponse{Messages: messages})
}

func (h *Handler) displaySnapshot(r *http.Request, identity string) *models.User {
	user, err := h.store.GetUser(r.Context(), identity)
	if err != nil {
		h.logger.Warn().Err(err).Str("user", identity).Msg("profile lookup failed")
	}
	if user == nil {
		return &models.User{Username: identity}
	}
	return user
}
