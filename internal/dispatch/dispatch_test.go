package dispatch

import (
	"errors"
	"testing"
)

func TestPushWithoutSession(t *testing.T) {
	r := NewRegistry()
	if err := r.Push("d1", map[string]string{"hello": "world"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestRemoveOnlyDropsOwnSession(t *testing.T) {
	r := NewRegistry()
	first := r.Add("d1", nil)
	second := r.Add("d1", nil)

	r.Remove("d1", first)
	if r.Len() != 1 {
		t.Fatalf("stale remove must not evict the replacement session")
	}
	r.Remove("d1", second)
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, have %d", r.Len())
	}
}
