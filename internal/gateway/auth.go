package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

type contextKey struct{ name string }

var userIDKey = &contextKey{"user-id"}

// UserID returns the authenticated user id stored in the request context,
// or "" when the request was not authenticated.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Authenticator resolves the user identity of incoming requests.
type Authenticator struct {
	mu sync.RWMutex
	// tokens maps bearer tokens to user ids. Empty means the gateway
	// trusts the X-User-ID header instead.
	tokens map[string]string
}

// NewAuthenticator creates an Authenticator from a token-to-user map.
func NewAuthenticator(tokens map[string]string) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// SetTokens replaces the token map, e.g. after a config reload.
func (a *Authenticator) SetTokens(tokens map[string]string) {
	a.mu.Lock()
	a.tokens = tokens
	a.mu.Unlock()
}

// Middleware rejects requests without a resolvable identity and stores the
// user id in the request context for handlers downstream.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.identify(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) identify(r *http.Request) (string, bool) {
	a.mu.RLock()
	tokens := a.tokens
	a.mu.RUnlock()

	if len(tokens) > 0 {
		auth := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(auth, "Bearer ")
		if !found {
			return "", false
		}
		userID, ok := tokens[strings.TrimSpace(token)]
		return userID, ok
	}

	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		return "", false
	}
	return userID, true
}
