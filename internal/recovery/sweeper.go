// Package recovery re-enqueues postings whose queue message was lost or
// whose processing stalled.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type Claimer interface {
	// ClaimStalled returns pending postings older than stuckAfter and
	// refreshes their updated_at so a second sweep skips them.
	ClaimStalled(ctx context.Context, stuckAfter time.Duration, limit int) ([]int64, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, ids []int64) (int, error)
}

type Sweeper struct {
	store    Claimer
	producer Enqueuer
}

func NewSweeper(store Claimer, producer Enqueuer) *Sweeper {
	return &Sweeper{store: store, producer: producer}
}

// RecoverStalled claims up to limit stuck postings and enqueues them again.
// It returns how many were re-enqueued.
func (s *Sweeper) RecoverStalled(ctx context.Context, stuckAfter time.Duration, limit int) (int, error) {
	ids, err := s.store.ClaimStalled(ctx, stuckAfter, limit)
	if err != nil {
		return 0, fmt.Errorf("claim stalled postings: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	sent, err := s.producer.Enqueue(ctx, ids)
	if err != nil {
		return sent, fmt.Errorf("re-enqueue stalled postings: %w", err)
	}
	log.Info().Str("component", "recovery").Int("claimed", len(ids)).Int("enqueued", sent).Dur("stuck_after", stuckAfter).Msg("stalled postings re-enqueued")
	return sent, nil
}
