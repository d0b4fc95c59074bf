package middleware

import (
	"net/http"
	"sync"
	"time"
)

// limiter is a fixed-window in-memory counter with periodic cleanup so the
// key map cannot grow without bound.
type limiter struct {
	mu          sync.Mutex
	m           map[string]entry
	perMinute   int
	lastCleanup time.Time
}

type entry struct {
	count int
	start time.Time
}

func newLimiter(perMinute int) *limiter {
	return &limiter{m: make(map[string]entry), perMinute: perMinute}
}

func (l *limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.lastCleanup) > 2*time.Minute {
		l.lastCleanup = now
		cutoff := now.Add(-2 * time.Minute)
		for k, e := range l.m {
			if e.start.Before(cutoff) {
				delete(l.m, k)
			}
		}
	}
	e := l.m[key]
	if now.Sub(e.start) > time.Minute {
		e = entry{count: 1, start: now}
	} else {
		e.count++
	}
	l.m[key] = e
	return e.count <= l.perMinute
}

func limitWith(perMinute int, keyFn func(r *http.Request) string) func(next http.Handler) http.Handler {
	l := newLimiter(perMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key != "" && !l.allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits N requests per minute per client IP. Use for public
// routes (no auth).
func RateLimitByIP(requestsPerMinute int) func(next http.Handler) http.Handler {
	return limitWith(requestsPerMinute, func(r *http.Request) string {
		return "ip:" + ClientIP(r)
	})
}

// RateLimit limits N requests per minute per user; unauthenticated requests
// fall back to the client IP.
func RateLimit(requestsPerMinute int) func(next http.Handler) http.Handler {
	return limitWith(requestsPerMinute, func(r *http.Request) string {
		if id, ok := UserID(r.Context()); ok {
			return id.String()
		}
		return "ip:" + ClientIP(r)
	})
}
