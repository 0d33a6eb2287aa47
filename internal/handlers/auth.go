package handlers

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/eldtechnologies/parley/internal/metrics"
	"github.com/eldtechnologies/parley/internal/models"
)

// Failed logins per username tolerated within the Redis decay window
// before further attempts are refused.
const maxLoginFailures = 10

const sessionCookieName = "access_token"

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse represents the API login response.
type TokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
}

// LoginAPI handles API login, returning a short-lived bearer token.
func (h *Handler) LoginAPI(w http.ResponseWriter, r *http.Request) {
	user, ok := h.checkCredentials(w, r)
	if !ok {
		return
	}

	tok, err := h.issuer.Issue(user.Username, 0)
	if err != nil {
		h.logger.Error().Err(err).Msg("token issue failed")
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.JSON(w, http.StatusOK, TokenResponse{
		TokenType:   "bearer",
		AccessToken: tok,
	})
}

// LoginSession handles cookie login for browser sessions. The cookie-bound
// token gets the long session lifetime rather than the API default.
func (h *Handler) LoginSession(w http.ResponseWriter, r *http.Request) {
	user, ok := h.checkCredentials(w, r)
	if !ok {
		return
	}

	tok, err := h.issuer.Issue(user.Username, h.sessionTTL)
	if err != nil {
		h.logger.Error().Err(err).Msg("token issue failed")
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Logout clears the session cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// checkCredentials validates a login request and writes the error response
// itself when the check fails.
func (h *Handler) checkCredentials(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.Username == "" || req.Password == "" {
		h.Error(w, http.StatusBadRequest, "username and password are required")
		return nil, false
	}

	if h.redis != nil {
		failures, err := h.redis.LoginFailures(r.Context(), req.Username)
		if err == nil && failures >= maxLoginFailures {
			h.Error(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
			return nil, false
		}
	}

	user, err := h.store.GetUser(r.Context(), req.Username)
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user does not exist")
		return nil, false
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		metrics.LoginFailures.Inc()
		if h.redis != nil {
			h.redis.RecordLoginFailure(r.Context(), req.Username)
		}
		h.Error(w, http.StatusBadRequest, "incorrect password")
		return nil, false
	}

	if h.redis != nil {
		h.redis.ResetLoginFailures(r.Context(), req.Username)
	}
	return user, true
}
