package auth

import (
	"context"
	"log"
	"net/http"
)

type contextKey string

// UsernameKey is the context key holding the authenticated username.
const UsernameKey contextKey = "username"

// RequireSession checks the session cookie and stores the username in the
// request context for downstream handlers. Returns 401 when the cookie is
// missing or the token does not verify.
func RequireSession(sessions *SessionManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		username, err := sessions.VerifyToken(cookie.Value)
		if err != nil {
			log.Printf("Auth: session verification failed: %v", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UsernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UsernameFromContext returns the authenticated username from the context.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}
