package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLimiterFixedWindow(t *testing.T) {
	l := newLimiter(3)
	for i := 0; i < 3; i++ {
		if !l.allow("a") {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if l.allow("a") {
		t.Fatal("4th request should be limited")
	}
	if !l.allow("b") {
		t.Fatal("other keys have their own budget")
	}
}

func TestRateLimitByIPBlocks(t *testing.T) {
	handler := RateLimitByIP(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d, want 429", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	defer TrustProxyHeaders(false)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.5:4321"
	if got := ClientIP(r); got != "192.168.1.5" {
		t.Fatalf("ClientIP = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	// Header is client-controlled; without an upstream proxy it must not
	// become the quota key.
	if got := ClientIP(r); got != "192.168.1.5" {
		t.Fatalf("ClientIP with untrusted header = %q, want remote addr", got)
	}

	TrustProxyHeaders(true)
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Fatalf("ClientIP forwarded = %q", got)
	}
}
