package projection

import "testing"

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(nil); got != 0 {
		t.Fatalf("empty = %d, want 0", got)
	}
	short := EstimateTokens([]Message{{Role: "user", Content: "hi"}})
	long := EstimateTokens([]Message{{Role: "user", Content: "a much longer message about the harbor at night"}})
	if short <= 0 || long <= short {
		t.Fatalf("short = %d, long = %d", short, long)
	}
	// 4 runes of role + 12 runes of content = 16 characters.
	if got := EstimateTokens([]Message{{Role: "user", Content: "twelve chars"}}); got != 16/4+4+1 {
		t.Fatalf("estimate = %d, want %d", got, 16/4+4+1)
	}
}
