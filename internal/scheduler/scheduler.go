package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

type Task func(ctx context.Context) error

// Every runs task once immediately and then on every tick until ctx is
// done. Runs never overlap. Errors and panics are logged and reported to
// Sentry; the loop keeps going.
func Every(ctx context.Context, interval time.Duration, name string, task Task) {
	if interval <= 0 {
		log.Warn().Str("component", "scheduler").Str("task", name).Msg("non-positive interval, task disabled")
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	runSafe(ctx, name, task)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runSafe(ctx, name, task)
		}
	}
}

func runSafe(ctx context.Context, name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task %s panicked: %v", name, r)
			log.Error().Str("component", "scheduler").Str("task", name).Err(err).Msg("task panic")
			sentry.CaptureException(err)
		}
	}()
	if err := task(ctx); err != nil && ctx.Err() == nil {
		log.Error().Str("component", "scheduler").Str("task", name).Err(err).Msg("task failed")
		sentry.CaptureException(err)
	}
}
