package workable

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/ingest/ats"
)

const accountJSON = `{"name":"Acme GmbH","jobs":[
 {"shortcode":"AB12","title":"Data Engineer","url":"https://apply.workable.com/j/AB12",
  "city":"Munich","country":"Germany","telecommuting":true,"published_on":"2024-02-10"},
 {"shortcode":"CD34","title":"Analyst","url":"https://apply.workable.com/j/CD34",
  "country":"Spain","created_at":"2024-01-05"},
 {"shortcode":"EF56","title":"Missing URL"}
]}`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/widget/accounts/acme" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(accountJSON))
	}))
	defer srv.Close()

	a := New(ats.NewClient())
	a.BaseURL = srv.URL

	got, err := a.Fetch(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d postings, want 2", len(got))
	}
	de, an := got[0], got[1]
	if de.Location != "Munich, Germany" || de.WorkplaceType != domain.WorkplaceRemote {
		t.Errorf("data engineer location/workplace = %q/%q", de.Location, de.WorkplaceType)
	}
	if de.CompanyName != "Acme GmbH" || de.ExternalID != "https://apply.workable.com/j/AB12" {
		t.Errorf("unexpected %+v", de)
	}
	if de.PostedAt == nil || de.PostedAt.Day() != 10 {
		t.Errorf("postedAt = %v", de.PostedAt)
	}
	if an.Location != "Spain" || an.WorkplaceType != "" {
		t.Errorf("analyst location/workplace = %q/%q", an.Location, an.WorkplaceType)
	}
	if an.PostedAt == nil || an.PostedAt.Month() != 1 {
		t.Errorf("created_at fallback = %v", an.PostedAt)
	}
}

func TestFetchMissingAccount(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	a := New(ats.NewClient())
	a.BaseURL = srv.URL

	got, err := a.Fetch(context.Background(), "acme")
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}
