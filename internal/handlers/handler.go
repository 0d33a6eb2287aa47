package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parley/internal/chat"
	"github.com/eldtechnologies/parley/internal/store"
	"github.com/eldtechnologies/parley/internal/token"
	"github.com/eldtechnologies/parley/internal/ws"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store      store.DataStore
	redis      *store.RedisStore // nil when Redis is not configured
	issuer     *token.Issuer
	registry   *ws.Registry
	router     *chat.Router
	logger     zerolog.Logger
	sessionTTL time.Duration
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(dataStore store.DataStore, redis *store.RedisStore, issuer *token.Issuer, registry *ws.Registry, router *chat.Router, logger zerolog.Logger, sessionTTL time.Duration) *Handler {
	return &Handler{
		store:      dataStore,
		redis:      redis,
		issuer:     issuer,
		registry:   registry,
		router:     router,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeNickname trims and limits a nickname to 100 characters, removing
// control characters.
func sanitizeNickname(nickname string) string {
	nickname = strings.TrimSpace(nickname)

	nickname = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, nickname)

	if len(nickname) > 100 {
		nickname = nickname[:100]
	}

	return nickname
}

// isValidUsername accepts 3-32 characters of letters, digits, underscore,
// dot, or hyphen.
func isValidUsername(username string) bool {
	if len(username) < 3 || len(username) > 32 {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return false
		}
	}
	return true
}
