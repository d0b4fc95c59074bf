package quota

import (
	"context"
	"testing"
	"time"

	"github.com/2refocus/dogs-ai-sub000/internal/policy"
)

func TestLimitForPerTier(t *testing.T) {
	c := New(nil, Limits{Guest: 3, LoggedIn: 50})
	if got := c.limitFor(policy.TierGuest); got != 3 {
		t.Fatalf("guest limit = %d, want 3", got)
	}
	if got := c.limitFor(policy.TierLoggedIn); got != 50 {
		t.Fatalf("logged_in limit = %d, want 50", got)
	}
	if got := c.limitFor(policy.TierPremium); got != 0 {
		t.Fatalf("premium limit = %d, want 0 (unlimited)", got)
	}
}

func TestTakeFailsOpenWithoutRedis(t *testing.T) {
	c := New(nil, Limits{Guest: 3, LoggedIn: 50})
	for i := 0; i < 10; i++ {
		if err := c.Take(context.Background(), policy.TierGuest, "ip:10.0.0.1"); err != nil {
			t.Fatalf("take %d: %v (quota must fail open, not block)", i+1, err)
		}
	}
}

func TestRemainingNilSafe(t *testing.T) {
	var c *Counter
	if got := c.Remaining(context.Background(), policy.TierGuest, "k"); got != -1 {
		t.Fatalf("nil counter Remaining = %d, want -1", got)
	}
	c = New(nil, Limits{Guest: 3})
	if got := c.Remaining(context.Background(), policy.TierGuest, "k"); got != -1 {
		t.Fatalf("no-redis Remaining = %d, want -1", got)
	}
}

func TestWindowEndIsNextUTCMidnight(t *testing.T) {
	now := time.Date(2026, 8, 28, 17, 42, 3, 0, time.UTC)
	want := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if got := windowEnd(now); !got.Equal(want) {
		t.Fatalf("windowEnd = %v, want %v", got, want)
	}

	// Non-UTC inputs still reset at UTC midnight.
	loc := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2026, 8, 29, 2, 0, 0, 0, loc) // 21:00 UTC the day before
	if got := windowEnd(local); !got.Equal(want) {
		t.Fatalf("windowEnd local = %v, want %v", got, want)
	}
}
