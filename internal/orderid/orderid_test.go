package orderid

import "testing"

func TestNextIsWithinMaxLength(t *testing.T) {
	g := New("perpcore")
	id := g.Next("BTC-PERP", "long")
	if len(id) > MaxLength {
		t.Errorf("expected id within %d chars, got %d (%s)", MaxLength, len(id), id)
	}
}

func TestNextIsUnique(t *testing.T) {
	g := New("perpcore")
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.Next("BTC", "long")
		if seen[id] {
			t.Fatalf("generated duplicate id %s", id)
		}
		seen[id] = true
	}
}
