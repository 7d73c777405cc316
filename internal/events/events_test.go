package events

import (
	"encoding/json"
	"testing"
)

func TestEmitDeliversEnvelope(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Emit("req-1", TypeRunCompleted, map[string]int{"sources": 2})

	var e Event
	if err := json.Unmarshal([]byte(<-ch), &e); err != nil {
		t.Fatal(err)
	}
	if e.Type != TypeRunCompleted || e.Version != 1 || e.RequestID != "req-1" || e.At.IsZero() {
		t.Fatalf("unexpected envelope %+v", e)
	}
	if string(e.Data) != `{"sources":2}` {
		t.Fatalf("data = %s", e.Data)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	for i := 0; i < cap(ch)+5; i++ {
		h.Publish("x")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered %d, want %d", len(ch), cap(ch))
	}
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	if h.Subscribers() != 0 {
		t.Fatal("subscriber not removed")
	}
}

func TestNilHubEmit(t *testing.T) {
	var h *Hub
	h.Emit("", TypeIngestCompleted, nil)
}
