package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// WithAdminToken requires every admin route except /health to present
// "Authorization: Bearer <token>". An empty token leaves the routes open,
// which is only safe on a loopback listener.
func WithAdminToken(token string) Option {
	return func(a *API) {
		a.adminToken = token
	}
}

// TokenMiddleware rejects requests that do not carry the configured admin
// bearer token.
func (a *API) TokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sessions"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sessions", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
