// Package poll drives scheduled ingestion: stale sources are fetched one at
// a time, merged through the ingest pipeline, and the recovery sweep runs
// after every pass.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/events"
	"jobsync-engine/internal/ingest"
)

var tracer = otel.Tracer("jobsync/poll")

type SourceStore interface {
	SelectStaleSources(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.Source, error)
	MarkFetched(ctx context.Context, sourceID int64) error
}

type Fetcher interface {
	Fetch(ctx context.Context, kind domain.SourceKind, companyKey string) ([]domain.Posting, error)
}

type Applier interface {
	Apply(ctx context.Context, postings []domain.Posting) (ingest.Summary, error)
}

type Recoverer interface {
	RecoverStalled(ctx context.Context, stuckAfter time.Duration, limit int) (int, error)
}

type Trigger interface {
	Process(ctx context.Context, postingIDs []int64) error
}

type Options struct {
	MaxSources    int
	StaleAfter    time.Duration
	StuckAfter    time.Duration
	RecoveryLimit int
	SourceDelay   time.Duration // minimum gap between two source fetches
	FetchTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxSources <= 0 {
		o.MaxSources = 10
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 6 * time.Hour
	}
	if o.StuckAfter <= 0 {
		o.StuckAfter = 6 * time.Hour
	}
	if o.RecoveryLimit <= 0 {
		o.RecoveryLimit = 200
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 2 * time.Minute
	}
	return o
}

type Report struct {
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Sources     int       `json:"sources"`
	FetchErrors int       `json:"fetchErrors"`
	Postings    int       `json:"postings"`
	New         int       `json:"new"`
	Failed      int       `json:"failed"`
	Enqueued    int       `json:"enqueued"`
	Recovered   int       `json:"recovered"`
	Triggered   bool      `json:"triggered"`
}

type Runner struct {
	sources  SourceStore
	fetcher  Fetcher
	pipeline Applier
	sweeper  Recoverer
	trigger  Trigger
	hub      *events.Hub
	opts     Options
}

func NewRunner(sources SourceStore, fetcher Fetcher, pipeline Applier, sweeper Recoverer, trigger Trigger, hub *events.Hub, opts Options) *Runner {
	return &Runner{
		sources:  sources,
		fetcher:  fetcher,
		pipeline: pipeline,
		sweeper:  sweeper,
		trigger:  trigger,
		hub:      hub,
		opts:     opts.withDefaults(),
	}
}

// RunOnce processes up to limit stale sources (MaxSources when limit <= 0).
// Fetch failures are logged and the source is still marked fetched. A queue
// failure ends the pass early; the recovery sweep runs regardless and will
// pick up whatever was not enqueued.
func (r *Runner) RunOnce(ctx context.Context, limit int) (Report, error) {
	if limit <= 0 {
		limit = r.opts.MaxSources
	}
	ctx, span := tracer.Start(ctx, "poll.run", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	rep := Report{StartedAt: time.Now().UTC()}
	logger := log.With().Str("component", "poll").Logger()

	// A failed select skips the fetch pass but not the sweep.
	srcs, selectErr := r.sources.SelectStaleSources(ctx, limit, r.opts.StaleAfter)
	if selectErr != nil {
		selectErr = fmt.Errorf("select stale sources: %w", selectErr)
		logger.Error().Err(selectErr).Msg("source selection failed")
	}

	gap := rate.Inf
	if r.opts.SourceDelay > 0 {
		gap = rate.Every(r.opts.SourceDelay)
	}
	limiter := rate.NewLimiter(gap, 1)

	var queueErr error
	for _, src := range srcs {
		if err := limiter.Wait(ctx); err != nil {
			queueErr = err
			break
		}
		rep.Sources++
		if err := r.processSource(ctx, src, &rep); err != nil {
			queueErr = err
			logger.Error().Err(err).Str("source", string(src.Kind)).Str("company", src.CompanyKey).Msg("queue send failed, ending pass")
			break
		}
	}

	recovered, sweepErr := r.sweeper.RecoverStalled(ctx, r.opts.StuckAfter, r.opts.RecoveryLimit)
	rep.Recovered = recovered
	if sweepErr != nil {
		logger.Error().Err(sweepErr).Msg("recovery sweep failed")
	}
	r.hub.Emit("", events.TypeRecoveryCompleted, map[string]int{"recovered": recovered})

	if rep.Enqueued+rep.Recovered > 0 && r.trigger != nil {
		if err := r.trigger.Process(ctx, nil); err != nil {
			logger.Warn().Err(err).Msg("downstream trigger failed")
		} else {
			rep.Triggered = true
		}
	}

	rep.FinishedAt = time.Now().UTC()
	span.SetAttributes(
		attribute.Int("sources", rep.Sources),
		attribute.Int("enqueued", rep.Enqueued),
		attribute.Int("recovered", rep.Recovered),
	)

	err := errors.Join(selectErr, queueErr, sweepErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run incomplete")
	}
	logger.Info().
		Int("sources", rep.Sources).
		Int("fetch_errors", rep.FetchErrors).
		Int("postings", rep.Postings).
		Int("new", rep.New).
		Int("enqueued", rep.Enqueued).
		Int("recovered", rep.Recovered).
		Dur("took", rep.FinishedAt.Sub(rep.StartedAt)).
		Msg("run finished")
	r.hub.Emit("", events.TypeRunCompleted, rep)
	return rep, err
}

// processSource returns an error only for queue failures.
func (r *Runner) processSource(ctx context.Context, src domain.Source, rep *Report) error {
	ctx, span := tracer.Start(ctx, "poll.source", trace.WithAttributes(
		attribute.String("source.kind", string(src.Kind)),
		attribute.String("source.company", src.CompanyKey),
	))
	defer span.End()

	logger := log.With().Str("component", "poll").Str("source", string(src.Kind)).Str("company", src.CompanyKey).Logger()
	defer func() {
		if err := r.sources.MarkFetched(ctx, src.ID); err != nil {
			logger.Error().Err(err).Msg("mark fetched")
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	postings, err := r.fetcher.Fetch(fctx, src.Kind, src.CompanyKey)
	cancel()
	if err != nil {
		rep.FetchErrors++
		span.RecordError(err)
		logger.Warn().Err(err).Msg("fetch failed")
		return nil
	}
	if len(postings) == 0 {
		logger.Debug().Msg("no postings")
		return nil
	}

	sum, err := r.pipeline.Apply(ctx, postings)
	rep.Postings += sum.Total
	rep.New += sum.New
	rep.Failed += sum.Failed
	rep.Enqueued += sum.Enqueued
	logger.Info().Int("postings", sum.Total).Int("new", sum.New).Int("failed", sum.Failed).Msg("source merged")
	if err != nil {
		span.SetStatus(codes.Error, "enqueue failed")
		return err
	}
	return nil
}
