package api

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const ctxAccountID ctxKey = iota

// AuthContext is the collaborator-supplied identity for a request; the
// kernel treats authentication/authorization as an external concern
// (spec.md §1) and only needs the resolved account id downstream.
type AuthContext interface {
	// ResolveAccountID maps a bearer/API key to an account id, or returns
	// an empty string if the key is not recognized.
	ResolveAccountID(apiKey string) string
}

// RequireAPIKey extracts `Authorization: Bearer <key>` or `X-API-Key`,
// resolves it via auth, and stores the account id on the request context.
func RequireAPIKey(auth AuthContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
					key = strings.TrimPrefix(h, "Bearer ")
				}
			}
			accountID := auth.ResolveAccountID(key)
			if accountID == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no valid auth"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxAccountID, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountID retrieves the authenticated account id set by RequireAPIKey.
func AccountID(r *http.Request) string {
	v, _ := r.Context().Value(ctxAccountID).(string)
	return v
}

// SecurityHeaders sets the Server response header to a fixed product name
// that carries no version string; it adds or removes no other header.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "coordinatord")
		next.ServeHTTP(w, r)
	})
}
