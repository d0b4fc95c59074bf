package replicate

import "testing"

func TestFirstOutputURLShapes(t *testing.T) {
	const want = "https://cdn/x.jpg"
	cases := []struct {
		name   string
		output interface{}
	}{
		{"string", want},
		{"string slice", []string{want}},
		{"interface slice", []interface{}{want, "https://cdn/y.jpg"}},
		{"map output string", map[string]interface{}{"output": want}},
		{"map output array", map[string]interface{}{"output": []interface{}{want}}},
		{"legacy urls array", map[string]interface{}{"urls": []interface{}{want}}},
	}
	for _, tc := range cases {
		got, ok := FirstOutputURL(tc.output)
		if !ok || got != want {
			t.Errorf("%s: got (%q, %v), want (%q, true)", tc.name, got, ok, want)
		}
	}
}

func TestFirstOutputURLEmpty(t *testing.T) {
	for _, output := range []interface{}{nil, "", []interface{}{}, []interface{}{42}, map[string]interface{}{"other": "x"}} {
		if url, ok := FirstOutputURL(output); ok {
			t.Errorf("%#v: unexpectedly normalized to %q", output, url)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []string{"succeeded", "completed", "failed", "canceled"} {
		if !Terminal(s) {
			t.Errorf("Terminal(%q) = false", s)
		}
	}
	for _, s := range []string{"starting", "processing", "queued", "running", ""} {
		if Terminal(s) {
			t.Errorf("Terminal(%q) = true", s)
		}
	}
	if !Succeeded("completed") || Succeeded("failed") {
		t.Error("Succeeded mapping wrong")
	}
}
