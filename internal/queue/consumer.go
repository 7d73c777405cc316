package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

type Decision int

const (
	Ack Decision = iota
	Retry
)

func (d Decision) String() string {
	if d == Ack {
		return "ack"
	}
	return "retry"
}

type Outcome struct {
	DeliveryID string
	Decision   Decision
	Reason     string
}

// Decide parses a delivery batch without side effects. Valid messages are
// acked and their posting ids accumulated (deduplicated, in delivery order);
// anything unparseable is retried.
func Decide(batch []Delivery) ([]int64, []Outcome) {
	seen := make(map[int64]bool, len(batch))
	var ids []int64
	outcomes := make([]Outcome, 0, len(batch))

	for _, d := range batch {
		var m Message
		if err := json.Unmarshal(d.Body, &m); err != nil {
			outcomes = append(outcomes, Outcome{DeliveryID: d.ID, Decision: Retry, Reason: "unparseable body"})
			continue
		}
		if m.PostingID <= 0 {
			outcomes = append(outcomes, Outcome{DeliveryID: d.ID, Decision: Retry, Reason: "missing postingId"})
			continue
		}
		if !seen[m.PostingID] {
			seen[m.PostingID] = true
			ids = append(ids, m.PostingID)
		}
		outcomes = append(outcomes, Outcome{DeliveryID: d.ID, Decision: Ack})
	}
	return ids, outcomes
}

type ConsumerOptions struct {
	BatchSize    int
	RetryDelay   time.Duration
	PollInterval time.Duration
}

type Consumer struct {
	t    Transport
	trig Trigger
	opts ConsumerOptions
}

func NewConsumer(t Transport, trig Trigger, opts ConsumerOptions) *Consumer {
	if opts.BatchSize <= 0 || opts.BatchSize > MaxBatch {
		opts.BatchSize = MaxBatch
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Consumer{t: t, trig: trig, opts: opts}
}

type BatchResult struct {
	Acked     int
	Retried   int
	Triggered int // postings handed to the trigger
}

// Handle processes one delivery batch: one trigger call for all accepted
// ids, then the per-message ack/retry. A failed trigger turns every accepted
// message into a retry.
func (c *Consumer) Handle(ctx context.Context, batch []Delivery) (BatchResult, error) {
	ids, outcomes := Decide(batch)

	var trigErr error
	if len(ids) > 0 {
		trigErr = c.trig.Process(ctx, ids)
		if trigErr != nil {
			for i := range outcomes {
				if outcomes[i].Decision == Ack {
					outcomes[i].Decision = Retry
					outcomes[i].Reason = "trigger failed"
				}
			}
		}
	}

	var res BatchResult
	var errs []error
	for _, o := range outcomes {
		switch o.Decision {
		case Ack:
			if err := c.t.Ack(ctx, o.DeliveryID); err != nil {
				errs = append(errs, err)
				continue
			}
			res.Acked++
		case Retry:
			if o.Reason != "trigger failed" {
				log.Warn().Str("component", "queue").Str("delivery", o.DeliveryID).Str("reason", o.Reason).Msg("retrying message")
			}
			if err := c.t.Retry(ctx, o.DeliveryID, c.opts.RetryDelay); err != nil {
				errs = append(errs, err)
				continue
			}
			res.Retried++
		}
	}
	if trigErr == nil {
		res.Triggered = len(ids)
	}
	return res, errors.Join(append([]error{trigErr}, errs...)...)
}

// Run receives and handles batches until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	logger := log.With().Str("component", "queue").Logger()
	for {
		batch, err := c.t.Receive(ctx, c.opts.BatchSize)
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("receive failed")
		}
		if len(batch) > 0 {
			res, err := c.Handle(ctx, batch)
			ev := logger.Info()
			if err != nil {
				ev = logger.Error().Err(err)
			}
			ev.Int("delivered", len(batch)).
				Int("acked", res.Acked).
				Int("retried", res.Retried).
				Int("triggered", res.Triggered).
				Msg("batch handled")
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.PollInterval):
		}
	}
}
