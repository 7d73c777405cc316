package greenhouse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/ingest/ats"
)

const boardJSON = `{"jobs":[
 {"id":11,"title":" Backend Engineer ","absolute_url":"https://job-boards.greenhouse.io/acme/jobs/11?gh_src=abc",
  "updated_at":"2024-05-01T12:00:00-04:00","company_name":"Acme",
  "content":"&lt;p&gt;Write Go&lt;/p&gt;","location":{"name":"Remote - EU"}},
 {"id":12,"title":"","absolute_url":"https://job-boards.greenhouse.io/acme/jobs/12"}
]}`

func TestFetch(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.RequestURI()
		_, _ = w.Write([]byte(boardJSON))
	}))
	defer srv.Close()

	a := New(ats.NewClient())
	a.BaseURL = srv.URL

	got, err := a.Fetch(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if path != "/v1/boards/acme/jobs?content=true" {
		t.Fatalf("path = %q", path)
	}
	if len(got) != 1 {
		t.Fatalf("got %d postings, want 1 (untitled job skipped)", len(got))
	}
	p := got[0]
	if p.ExternalID != "https://job-boards.greenhouse.io/acme/jobs/11" || p.URL != p.ExternalID {
		t.Errorf("externalId/url = %q/%q", p.ExternalID, p.URL)
	}
	if p.Title != "Backend Engineer" || p.CompanyName != "Acme" || p.SourceKind != domain.KindGreenhouse {
		t.Errorf("unexpected posting %+v", p)
	}
	if p.Description != "Write Go" {
		t.Errorf("description = %q", p.Description)
	}
	if p.Location != "Remote - EU" || p.WorkplaceType != domain.WorkplaceRemote {
		t.Errorf("location/workplace = %q/%q", p.Location, p.WorkplaceType)
	}
	if p.PostedAt == nil || p.PostedAt.Hour() != 16 {
		t.Errorf("postedAt = %v", p.PostedAt)
	}
}

func TestFetchMissingBoard(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	a := New(ats.NewClient())
	a.BaseURL = srv.URL

	got, err := a.Fetch(context.Background(), "ghost")
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v; want empty, nil", got, err)
	}
}

func TestFetchServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := ats.NewClient(ats.WithMaxAttempts(1))
	a := New(c)
	a.BaseURL = srv.URL

	_, err := a.Fetch(context.Background(), "acme")
	if err == nil || !strings.Contains(err.Error(), "greenhouse acme") {
		t.Fatalf("err = %v", err)
	}
}
