package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/parley/internal/api/middleware"
)

// UpdateProfileRequest represents the profile update request body.
type UpdateProfileRequest struct {
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}

// UpdateProfile updates the caller's display fields. Roster entries held
// by other users refresh lazily on the next exchange.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.store.UpdateProfile(r.Context(), identity, sanitizeNickname(req.Nickname), req.AvatarURL); err != nil {
		h.logger.Error().Err(err).Msg("profile update failed")
		h.Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
