package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "user_id"
const emailKey contextKey = "email"

func withUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func withEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

func Email(ctx context.Context) string {
	e, _ := ctx.Value(emailKey).(string)
	return e
}

// trustForwarded gates X-Forwarded-For handling. Off by default so a direct
// caller cannot choose its own quota key by rotating the header; main enables
// it when the service sits behind a proxy that overwrites the header.
var trustForwarded bool

// TrustProxyHeaders is set once at startup from config.
func TrustProxyHeaders(v bool) { trustForwarded = v }

// ClientIP extracts the caller's IP. X-Forwarded-For is honored only when
// TrustProxyHeaders was enabled. Used as the quota key for guests.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" && trustForwarded {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
