package lever

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/ingest/ats"
)

const postingsJSON = `[
 {"id":"abc","text":"Platform Engineer","hostedUrl":"https://jobs.lever.co/acme-labs/abc",
  "createdAt":1714564800000,"descriptionPlain":"Run the platform.","description":"<p>ignored</p>",
  "workplaceType":"hybrid","categories":{"location":"Lisbon, Portugal","team":"Infra"}},
 {"id":"nourl","text":"Ghost"}
]`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/postings/acme-labs" || r.URL.Query().Get("mode") != "json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(postingsJSON))
	}))
	defer srv.Close()

	a := New(ats.NewClient())
	a.BaseURL = srv.URL
	a.EUBaseURL = ""

	got, err := a.Fetch(context.Background(), "acme-labs")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d postings, want 1", len(got))
	}
	p := got[0]
	if p.ExternalID != "https://jobs.lever.co/acme-labs/abc" || p.CompanyName != "Acme Labs" {
		t.Errorf("unexpected posting %+v", p)
	}
	if p.Description != "Run the platform." {
		t.Errorf("description = %q", p.Description)
	}
	if p.WorkplaceType != domain.WorkplaceHybrid || p.Location != "Lisbon, Portugal" {
		t.Errorf("workplace/location = %q/%q", p.WorkplaceType, p.Location)
	}
	if p.PostedAt == nil || p.PostedAt.UnixMilli() != 1714564800000 {
		t.Errorf("postedAt = %v", p.PostedAt)
	}
}

func TestFetchFallsBackToEU(t *testing.T) {
	global := httptest.NewServer(http.NotFoundHandler())
	defer global.Close()
	eu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(postingsJSON))
	}))
	defer eu.Close()

	a := New(ats.NewClient())
	a.BaseURL = global.URL
	a.EUBaseURL = eu.URL

	got, err := a.Fetch(context.Background(), "acme-labs")
	if err != nil || len(got) != 1 {
		t.Fatalf("got %d, %v", len(got), err)
	}
}

func TestFetchMissingEverywhere(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	a := New(ats.NewClient())
	a.BaseURL = srv.URL
	a.EUBaseURL = srv.URL

	got, err := a.Fetch(context.Background(), "nobody")
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}
