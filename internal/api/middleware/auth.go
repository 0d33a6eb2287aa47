package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/eldtechnologies/parley/internal/token"
)

type contextKey string

const identityContextKey contextKey = "identity"

const sessionCookieName = "access_token"

// AuthMiddleware resolves the authenticated identity from a bearer token
// or the session cookie.
type AuthMiddleware struct {
	issuer *token.Issuer
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(issuer *token.Issuer) *AuthMiddleware {
	return &AuthMiddleware{issuer: issuer}
}

// Require verifies the request's token and stores the bound identity in the
// request context. Missing, malformed, or expired tokens get a 401 and no
// state change.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := extractToken(r)
		if tok == "" {
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		identity, err := m.issuer.Verify(tok)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken pulls a token from the Authorization header, falling back
// to the session cookie.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, found := strings.CutPrefix(auth, "Bearer "); found {
			return tok
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetIdentity retrieves the authenticated identity from the request
// context. It returns "" on an unauthenticated request.
func GetIdentity(ctx context.Context) string {
	identity, _ := ctx.Value(identityContextKey).(string)
	return identity
}
