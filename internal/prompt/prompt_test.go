package prompt

import (
	"strings"
	"testing"
)

func TestComposeDeterministic(t *testing.T) {
	a := Compose("dog", "Royal Portrait", "1_1", "")
	b := Compose("dog", "Royal Portrait", "1_1", "")
	if a != b {
		t.Fatalf("same inputs produced different prompts:\n%q\n%q", a, b)
	}
	if a == "" {
		t.Fatal("empty prompt")
	}
}

func TestComposeUnknownStyleAndAspectFallBack(t *testing.T) {
	got := Compose("dog", "NoSuchStyle", "9_9", "")
	want := Compose("dog", "Photorealistic", "4_5", "")
	if got != want {
		t.Fatalf("fallback mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestComposeCustomTextWins(t *testing.T) {
	got := Compose("cat", "Anime", "16_9", "  a corgi astronaut on the moon  ")
	if got != "a corgi astronaut on the moon" {
		t.Fatalf("custom text not returned verbatim: %q", got)
	}
	// whitespace-only custom text is treated as absent
	got = Compose("cat", "Anime", "16_9", "   ")
	if !strings.Contains(got, "Style: ") {
		t.Fatalf("blank custom text should compose normally: %q", got)
	}
}

func TestComposeClauseOrder(t *testing.T) {
	p := Compose("dog", "Watercolor", "4_5", "")
	idxStyle := strings.Index(p, "Style: ")
	idxAvoid := strings.Index(p, "Avoid: ")
	idxAspect := strings.Index(p, "4:5")
	if idxStyle < 0 || idxAvoid < 0 || idxAspect < 0 {
		t.Fatalf("missing clause in %q", p)
	}
	if !(idxStyle < idxAvoid && idxAvoid < idxAspect) {
		t.Fatalf("clauses out of order in %q", p)
	}
	if strings.Contains(p, "  ") {
		t.Fatalf("double space in %q", p)
	}
}

func TestComposeSpeciesMentioned(t *testing.T) {
	p := Compose("ginger cat", "Pop Art", "1_1", "")
	if !strings.Contains(p, "ginger cat") {
		t.Fatalf("species missing from %q", p)
	}
}

func TestAspectRatio(t *testing.T) {
	if got := AspectRatio("16_9"); got != "16:9" {
		t.Fatalf("AspectRatio(16_9) = %q", got)
	}
	if got := AspectRatio("bogus"); got != "4:5" {
		t.Fatalf("AspectRatio(bogus) = %q, want default 4:5", got)
	}
}
