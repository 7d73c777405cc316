package ingest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/queue"
	"jobsync-engine/internal/store"
)

// fakeStore keeps postings by natural key and mimics the upsert status rule.
type fakeStore struct {
	mu     sync.Mutex
	rows   map[domain.NaturalKey]*domain.Posting
	nextID int64
	failOn string
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[domain.NaturalKey]*domain.Posting)}
}

func (f *fakeStore) UpsertPosting(_ context.Context, p domain.Posting) (store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && p.ExternalID == f.failOn {
		return store.UpsertResult{}, errors.New("disk on fire")
	}
	if p.Status == "" {
		p.Status = domain.StatusNew
	}
	if cur, ok := f.rows[p.Key()]; ok {
		wasPending := cur.Status.Pending()
		if !(cur.Status != domain.StatusNew && p.Status == domain.StatusNew) {
			cur.Status = p.Status
		}
		cur.Title = p.Title
		return store.UpsertResult{ID: cur.ID, IsNew: wasPending}, nil
	}
	f.nextID++
	p.ID = f.nextID
	f.rows[p.Key()] = &p
	return store.UpsertResult{ID: p.ID, IsNew: true}, nil
}

func validInput(ext string) Input {
	return Input{
		Title:      "Go Engineer",
		CompanyKey: "Acme",
		URL:        "https://job-boards.greenhouse.io/acme/jobs/" + ext,
		ExternalID: "https://job-boards.greenhouse.io/acme/jobs/" + ext,
		SourceKind: "greenhouse",
	}
}

func TestValidateMissingTitle(t *testing.T) {
	items := []Input{validInput("1"), validInput("2"), validInput("3")}
	items[1].Title = "  "

	got := Validate(items)
	want := []InvalidItem{{Index: 1, Errors: []string{"title is required"}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Validate = %+v, want %+v", got, want)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	in := Input{SourceKind: "monster", Status: "done", PostedAt: "last week"}
	got := Validate([]Input{in})
	if len(got) != 1 {
		t.Fatalf("got %+v", got)
	}
	joined := strings.Join(got[0].Errors, "|")
	for _, want := range []string{
		"title is required", "companyKey is required", "url is required", "externalId is required",
		`sourceKind "monster" is not supported`, `status "done" is not a known status`,
		"postedAt must be an RFC 3339 timestamp",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in %q", want, joined)
		}
	}
}

func TestValidateRejectsBoardURL(t *testing.T) {
	in := validInput("1")
	in.ExternalID = "https://jobs.lever.co/acme"
	got := Validate([]Input{in})
	if len(got) != 1 || !strings.Contains(got[0].Errors[0], "job board") {
		t.Fatalf("got %+v", got)
	}
}

func TestToPosting(t *testing.T) {
	in := validInput("9")
	in.PostedAt = "2026-01-02T03:04:05+01:00"
	in.Status = "EU-Remote"

	p := in.ToPosting()
	if p.SourceKind != domain.KindGreenhouse || p.CompanyKey != "acme" || p.Status != domain.StatusEURemote {
		t.Fatalf("unexpected %+v", p)
	}
	if p.PostedAt == nil || p.PostedAt.Hour() != 2 {
		t.Fatalf("postedAt = %v", p.PostedAt)
	}
}

func postings(ids ...string) []domain.Posting {
	var out []domain.Posting
	for _, id := range ids {
		out = append(out, validInput(id).ToPosting())
	}
	return out
}

func TestApplyEnqueuesNewPostings(t *testing.T) {
	st := newFakeStore()
	tr := queue.NewMemoryTransport(3)
	p := NewPipeline(st, queue.NewProducer(tr, 2), 3)

	sum, err := p.Apply(context.Background(), postings("1", "2", "3"))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 3 || sum.Success != 3 || sum.New != 3 || sum.Enqueued != 3 || sum.Skipped != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.JobIDs) != 3 {
		t.Fatalf("job ids = %v", sum.JobIDs)
	}
	if len(tr.Sends) != 2 || len(tr.Sends[0]) != 2 || len(tr.Sends[1]) != 1 {
		t.Fatalf("sends = %v", tr.Sends)
	}
}

func TestApplySkipsProcessedPostings(t *testing.T) {
	st := newFakeStore()
	tr := queue.NewMemoryTransport(3)
	p := NewPipeline(st, queue.NewProducer(tr, 100), 1)

	first := postings("1")
	first[0].Status = domain.StatusEURemote
	if _, err := p.Apply(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	tr.Sends = nil

	sum, err := p.Apply(context.Background(), postings("1"))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 1 || sum.New != 0 || sum.Enqueued != 0 || len(tr.Sends) != 0 {
		t.Fatalf("summary = %+v sends = %v", sum, tr.Sends)
	}
	row := st.rows[first[0].Key()]
	if row.Status != domain.StatusEURemote {
		t.Fatalf("status regressed to %q", row.Status)
	}
}

func TestApplyRecordsItemFailures(t *testing.T) {
	st := newFakeStore()
	st.failOn = validInput("2").ExternalID
	tr := queue.NewMemoryTransport(3)
	p := NewPipeline(st, queue.NewProducer(tr, 100), 4)

	sum, err := p.Apply(context.Background(), postings("1", "2", "3"))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 1 || sum.Success != 2 || len(sum.Failures) != 1 || sum.Failures[0].Index != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Enqueued != 2 {
		t.Fatalf("enqueued = %d", sum.Enqueued)
	}
}

func TestApplyDeduplicatesEnqueue(t *testing.T) {
	st := newFakeStore()
	tr := queue.NewMemoryTransport(3)
	p := NewPipeline(st, queue.NewProducer(tr, 100), 1)

	sum, err := p.Apply(context.Background(), postings("1", "1"))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Success != 2 || sum.Enqueued != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestApplyQueueFailure(t *testing.T) {
	st := newFakeStore()
	tr := queue.NewMemoryTransport(3)
	tr.SendErr = errors.New("broker down")
	p := NewPipeline(st, queue.NewProducer(tr, 100), 2)

	sum, err := p.Apply(context.Background(), postings("1", "2"))
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("err = %v", err)
	}
	if sum.Success != 2 || sum.Enqueued != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}
