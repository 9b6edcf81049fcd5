package cache

import (
	"strings"
	"testing"
)

func TestDefaultKeyer_NilInput(t *testing.T) {
	keyer := NewDefaultKeyer()

	key, err := keyer.Key("announcements:active", nil)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if key != "announcements:active" {
		t.Errorf("nil input key = %q, want the bare prefix", key)
	}
}

func TestDefaultKeyer_Deterministic(t *testing.T) {
	keyer := NewDefaultKeyer()

	input := map[string]any{"page": 2, "size": 25, "status": "open"}
	first, err := keyer.Key("requests:list", input)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}

	// Repeated calls over the same map must not drift with iteration order.
	for i := 0; i < 20; i++ {
		key, err := keyer.Key("requests:list", map[string]any{"status": "open", "size": 25, "page": 2})
		if err != nil {
			t.Fatalf("Key failed: %v", err)
		}
		if key != first {
			t.Fatalf("key drifted: %q vs %q", key, first)
		}
	}

	if !strings.HasPrefix(first, "requests:list:") {
		t.Errorf("key %q should carry the prefix", first)
	}
	if got := len(first) - len("requests:list:"); got != 16 {
		t.Errorf("hash suffix length = %d, want 16 hex chars", got)
	}
}

func TestDefaultKeyer_DistinctInputs(t *testing.T) {
	keyer := NewDefaultKeyer()

	a, err := keyer.Key("p", map[string]any{"id": 1})
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	b, err := keyer.Key("p", map[string]any{"id": 2})
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if a == b {
		t.Errorf("distinct inputs produced the same key %q", a)
	}
}

func TestDefaultKeyer_NestedStructures(t *testing.T) {
	keyer := NewDefaultKeyer()

	input := map[string]any{
		"filters": map[string]any{"z": true, "a": false},
		"ids":     []any{3, 1, 2},
	}
	first, err := keyer.Key("p", input)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	again, err := keyer.Key("p", map[string]any{
		"ids":     []any{3, 1, 2},
		"filters": map[string]any{"a": false, "z": true},
	})
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if first != again {
		t.Errorf("nested map ordering changed the key: %q vs %q", first, again)
	}

	// Slice order is significant.
	reordered, err := keyer.Key("p", map[string]any{
		"ids":     []any{1, 2, 3},
		"filters": map[string]any{"a": false, "z": true},
	})
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if reordered == first {
		t.Error("reordering a slice should change the key")
	}
}

func TestDefaultKeyer_InvalidPrefix(t *testing.T) {
	keyer := NewDefaultKeyer()

	if _, err := keyer.Key("", nil); err == nil {
		t.Error("empty prefix should error")
	}
	if _, err := keyer.Key(strings.Repeat("x", MaxKeyLength+1), nil); err == nil {
		t.Error("oversized prefix should error")
	}
}

func TestDefaultKeyer_UnmarshalableInput(t *testing.T) {
	keyer := NewDefaultKeyer()

	if _, err := keyer.Key("p", make(chan int)); err == nil {
		t.Error("unmarshalable input should error")
	}
}
