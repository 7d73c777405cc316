package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/store"
)

var tracer = otel.Tracer("jobsync/ingest")

const DefaultConcurrency = 4

type Store interface {
	UpsertPosting(ctx context.Context, p domain.Posting) (store.UpsertResult, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, ids []int64) (int, error)
}

type Failure struct {
	Index      int    `json:"index"`
	ExternalID string `json:"externalId"`
	Error      string `json:"error"`
}

// Summary counts what one Apply did. Skipped postings were stored but are
// already past the pending state, so nothing was queued for them.
type Summary struct {
	Total    int       `json:"totalJobs"`
	Success  int       `json:"successCount"`
	New      int       `json:"newCount"`
	Skipped  int       `json:"skippedCount"`
	Failed   int       `json:"failCount"`
	Enqueued int       `json:"enqueuedCount"`
	JobIDs   []int64   `json:"jobIds"`
	Failures []Failure `json:"failures"`
}

type Pipeline struct {
	store       Store
	producer    Enqueuer
	concurrency int
}

func NewPipeline(s Store, producer Enqueuer, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pipeline{store: s, producer: producer, concurrency: concurrency}
}

type itemResult struct {
	res store.UpsertResult
	err error
}

// Apply upserts every posting and enqueues the ids that are new or still
// pending. Per-item storage errors land in Summary.Failures; the returned
// error is reserved for the queue send.
func (p *Pipeline) Apply(ctx context.Context, postings []domain.Posting) (Summary, error) {
	ctx, span := tracer.Start(ctx, "ingest.apply")
	defer span.End()
	span.SetAttributes(attribute.Int("postings", len(postings)))

	results := make([]itemResult, len(postings))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range postings {
		g.Go(func() error {
			res, err := p.store.UpsertPosting(ctx, postings[i])
			results[i] = itemResult{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Total: len(postings), JobIDs: []int64{}, Failures: []Failure{}}
	var pending []int64
	seen := make(map[int64]bool)
	for i, r := range results {
		if r.err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{Index: i, ExternalID: postings[i].ExternalID, Error: r.err.Error()})
			log.Warn().Str("component", "ingest").
				Str("source", string(postings[i].SourceKind)).
				Str("company", postings[i].CompanyKey).
				Str("external_id", postings[i].ExternalID).
				Err(r.err).Msg("upsert failed")
			continue
		}
		sum.Success++
		sum.JobIDs = append(sum.JobIDs, r.res.ID)
		if !r.res.IsNew {
			sum.Skipped++
			continue
		}
		sum.New++
		if !seen[r.res.ID] {
			seen[r.res.ID] = true
			pending = append(pending, r.res.ID)
		}
	}

	if len(pending) > 0 {
		sent, err := p.producer.Enqueue(ctx, pending)
		sum.Enqueued = sent
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "enqueue failed")
			return sum, fmt.Errorf("enqueue %d postings: %w", len(pending), err)
		}
	}

	span.SetAttributes(
		attribute.Int("new", sum.New),
		attribute.Int("failed", sum.Failed),
		attribute.Int("enqueued", sum.Enqueued),
	)
	return sum, nil
}
