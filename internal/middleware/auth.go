package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/google/uuid"

	"github.com/2refocus/dogs-ai-sub000/internal/auth"
	"github.com/2refocus/dogs-ai-sub000/internal/store"
)

func bearerToken(r *http.Request) string {
	raw := r.Header.Get("Authorization")
	if raw == "" && r.Method == http.MethodGet && r.URL.Query().Get("token") != "" {
		raw = "Bearer " + r.URL.Query().Get("token")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(raw, prefix) {
		return ""
	}
	return strings.TrimPrefix(raw, prefix)
}

func verify(token, secret string, jwks *keyfunc.JWKS) (uuid.UUID, string, error) {
	if jwks != nil {
		return auth.VerifySupabaseTokenJWKS(token, jwks)
	}
	return auth.VerifySupabaseToken(token, secret)
}

// RequireAuth verifies the Supabase JWT (JWKS or legacy secret), syncs the
// user into our users table and sets the user ID in context. 401 without a
// valid token.
func RequireAuth(secret string, jwks *keyfunc.JWKS, db *store.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"missing authorization"}`, http.StatusUnauthorized)
				return
			}
			userID, email, err := verify(token, secret, jwks)
			if err != nil {
				log.Printf("auth: token verify failed: %v", err)
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			if err := db.UpsertUser(r.Context(), userID, email); err != nil {
				log.Printf("auth: upsert user: %v", err)
				http.Error(w, `{"error":"db error"}`, http.StatusInternalServerError)
				return
			}
			ctx := withUserID(r.Context(), userID)
			ctx = withEmail(ctx, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth sets the user in context when a valid token is present and
// lets the request through as a guest otherwise. Generation and gallery
// routes accept anonymous callers.
func OptionalAuth(secret string, jwks *keyfunc.JWKS, db *store.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, email, err := verify(token, secret, jwks)
			if err != nil {
				// Invalid token on an optional route degrades to guest.
				next.ServeHTTP(w, r)
				return
			}
			if err := db.UpsertUser(r.Context(), userID, email); err != nil {
				log.Printf("auth: upsert user: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			ctx := withUserID(r.Context(), userID)
			ctx = withEmail(ctx, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
