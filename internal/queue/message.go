// Package queue carries "posting changed" notifications from the upsert
// path to the downstream classifier with at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// MaxBatch is the per-call send limit of every transport.
const MaxBatch = 100

type Message struct {
	PostingID int64 `json:"postingId"`
}

func (m Message) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

// Delivery is one received message. ID is the transport's handle for
// ack/retry; Body is the raw payload as sent.
type Delivery struct {
	ID       string
	Body     []byte
	Attempts int
}

type Sender interface {
	// Send delivers msgs atomically; len(msgs) never exceeds MaxBatch.
	Send(ctx context.Context, msgs []Message) error
}

type Transport interface {
	Sender
	Receive(ctx context.Context, max int) ([]Delivery, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, delay time.Duration) error
}

// Trigger asks the downstream processor to work on the given postings.
// A nil slice means "process whatever is pending".
type Trigger interface {
	Process(ctx context.Context, postingIDs []int64) error
}
