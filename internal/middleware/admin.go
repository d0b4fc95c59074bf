package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/2refocus/dogs-ai-sub000/internal/store"
)

// RequireAdmin ensures the request user carries users.is_admin. Use after
// RequireAuth.
func RequireAdmin(db *store.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok || userID == uuid.Nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			admin, err := db.IsAdmin(r.Context(), userID)
			if err != nil || !admin {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
