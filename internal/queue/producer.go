package queue

import (
	"context"
	"fmt"
)

type Producer struct {
	sender    Sender
	batchSize int
}

// NewProducer clamps batchSize into [1, MaxBatch].
func NewProducer(s Sender, batchSize int) *Producer {
	if batchSize <= 0 || batchSize > MaxBatch {
		batchSize = MaxBatch
	}
	return &Producer{sender: s, batchSize: batchSize}
}

// Enqueue sends one message per id, batchSize messages per Send call.
// It stops at the first failed send and reports how many were sent before it.
func (p *Producer) Enqueue(ctx context.Context, ids []int64) (int, error) {
	sent := 0
	for start := 0; start < len(ids); start += p.batchSize {
		end := min(start+p.batchSize, len(ids))

		msgs := make([]Message, 0, end-start)
		for _, id := range ids[start:end] {
			msgs = append(msgs, Message{PostingID: id})
		}
		if err := p.sender.Send(ctx, msgs); err != nil {
			return sent, fmt.Errorf("queue send (%d of %d sent): %w", sent, len(ids), err)
		}
		sent += len(msgs)
	}
	return sent, nil
}
