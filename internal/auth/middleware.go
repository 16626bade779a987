package auth

import (
	"net/http"
	"strings"
)

// ErrorWriter renders an error response. The http package supplies its JSON
// envelope writer.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// Authenticate attaches a Principal when the request carries a valid bearer
// token. Requests without an Authorization header pass through anonymously;
// malformed or invalid tokens are rejected with 401.
func Authenticate(tokens *Tokens, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "authorization header must be a bearer token")
				return
			}
			p, err := tokens.Validate(strings.TrimSpace(raw))
			if err != nil {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
