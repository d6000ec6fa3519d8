package record

import "testing"

func TestShingleHashesCount(t *testing.T) {
	tokens := []string{"a", "b", "c", "d", "e"}
	got := ShingleHashes(tokens, 3)
	// Distinct tokens produce len-n+1 distinct shingles.
	if len(got) != 3 {
		t.Errorf("got %d shingles, want 3", len(got))
	}
}

func TestShingleHashesDeduplicates(t *testing.T) {
	tokens := []string{"a", "b", "a", "b", "a", "b"}
	got := ShingleHashes(tokens, 2)
	// Only "a b" and "b a" occur.
	if len(got) != 2 {
		t.Errorf("got %d shingles, want 2", len(got))
	}
}

func TestShingleHashesTooShort(t *testing.T) {
	if got := ShingleHashes([]string{"a", "b"}, 3); got != nil {
		t.Errorf("expected nil for short input, got %v", got)
	}
}

func TestShingleHashesDeterministic(t *testing.T) {
	tokens := []string{"alpha", "beta", "gamma", "delta"}
	a := ShingleHashes(tokens, 2)
	b := ShingleHashes(tokens, 2)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("shingle %d differs: %x vs %x", i, a[i], b[i])
		}
	}
}
