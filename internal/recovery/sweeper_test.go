package recovery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/queue"
	"jobsync-engine/internal/store"
)

func TestRecoverStalledReenqueuesOnce(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "recovery.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := store.Migrate(db.Pool); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := now.Add(-7 * time.Hour)
	db.SetClock(func() time.Time { return clock })

	ctx := context.Background()
	res, err := db.UpsertPosting(ctx, domain.Posting{
		SourceKind: domain.KindLever,
		CompanyKey: "acme",
		ExternalID: "https://jobs.lever.co/acme/1",
		Title:      "SRE",
		URL:        "https://jobs.lever.co/acme/1",
	})
	if err != nil {
		t.Fatal(err)
	}

	clock = now
	tr := queue.NewMemoryTransport(3)
	sw := NewSweeper(db, queue.NewProducer(tr, 100))

	n, err := sw.RecoverStalled(ctx, 6*time.Hour, 50)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(tr.Sends) != 1 || tr.Sends[0][0].PostingID != res.ID {
		t.Fatalf("recovered %d, sends %v", n, tr.Sends)
	}

	p, err := db.GetPosting(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !p.UpdatedAt.Equal(now) {
		t.Fatalf("updatedAt = %v, want %v", p.UpdatedAt, now)
	}

	n, err = sw.RecoverStalled(ctx, 6*time.Hour, 50)
	if err != nil || n != 0 {
		t.Fatalf("second sweep recovered %d, %v", n, err)
	}
}

type stubClaimer struct {
	ids []int64
	err error
}

func (s stubClaimer) ClaimStalled(context.Context, time.Duration, int) ([]int64, error) {
	return s.ids, s.err
}

func TestRecoverStalledPropagatesErrors(t *testing.T) {
	tr := queue.NewMemoryTransport(3)

	_, err := NewSweeper(stubClaimer{err: errors.New("locked")}, queue.NewProducer(tr, 10)).
		RecoverStalled(context.Background(), time.Hour, 10)
	if err == nil {
		t.Fatal("expected claim error")
	}

	tr.SendErr = errors.New("queue full")
	n, err := NewSweeper(stubClaimer{ids: []int64{4, 5}}, queue.NewProducer(tr, 10)).
		RecoverStalled(context.Background(), time.Hour, 10)
	if err == nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
