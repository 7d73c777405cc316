package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTransport is an in-process transport. It records every Send call,
// which makes it the transport of choice in tests.
type MemoryTransport struct {
	mu          sync.Mutex
	ready       []Delivery
	inflight    map[string]Delivery
	dead        []Delivery
	maxAttempts int
	now         func() time.Time
	delayed     map[string]time.Time

	Sends   [][]Message
	SendErr error
}

func NewMemoryTransport(maxAttempts int) *MemoryTransport {
	return &MemoryTransport{
		inflight:    make(map[string]Delivery),
		delayed:     make(map[string]time.Time),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (m *MemoryTransport) Send(_ context.Context, msgs []Message) error {
	if len(msgs) > MaxBatch {
		return fmt.Errorf("batch of %d exceeds limit %d", len(msgs), MaxBatch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sends = append(m.Sends, append([]Message(nil), msgs...))
	for _, msg := range msgs {
		m.ready = append(m.ready, Delivery{ID: uuid.NewString(), Body: msg.Encode()})
	}
	return nil
}

// Push enqueues a raw body, bypassing encoding.
func (m *MemoryTransport) Push(body []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.ready = append(m.ready, Delivery{ID: id, Body: body})
	return id
}

func (m *MemoryTransport) Receive(_ context.Context, max int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out, keep []Delivery
	for _, d := range m.ready {
		if len(out) >= max || now.Before(m.delayed[d.ID]) {
			keep = append(keep, d)
			continue
		}
		d.Attempts++
		delete(m.delayed, d.ID)
		m.inflight[d.ID] = d
		out = append(out, d)
	}
	m.ready = keep
	return out, nil
}

func (m *MemoryTransport) Ack(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[id]; !ok {
		return fmt.Errorf("ack %s: not in flight", id)
	}
	delete(m.inflight, id)
	return nil
}

func (m *MemoryTransport) Retry(_ context.Context, id string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.inflight[id]
	if !ok {
		return fmt.Errorf("retry %s: not in flight", id)
	}
	delete(m.inflight, id)
	if m.maxAttempts > 0 && d.Attempts >= m.maxAttempts {
		m.dead = append(m.dead, d)
		return nil
	}
	m.delayed[id] = m.now().Add(delay)
	m.ready = append(m.ready, d)
	return nil
}

// Pending returns the number of messages waiting or in flight.
func (m *MemoryTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready) + len(m.inflight)
}

func (m *MemoryTransport) Dead() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.dead...)
}

// SetClock replaces the time source used for retry delays.
func (m *MemoryTransport) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Depth counts messages by state, in the same shape as the table transports.
func (m *MemoryTransport) Depth(_ context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"ready":    len(m.ready),
		"inflight": len(m.inflight),
		"dead":     len(m.dead),
	}, nil
}
