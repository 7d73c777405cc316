package ashby

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/ingest/ats"
)

const boardJSON = `{"title":"Acme Inc","jobs":[
 {"id":"1","title":"SRE","locationName":"Berlin","isRemote":true,
  "descriptionHtml":"<p>Keep it <b>up</b></p>","jobUrl":"https://jobs.ashbyhq.com/acme/1",
  "publishedAt":"2024-04-02T09:30:00.000+00:00"},
 {"id":"2","title":"Designer","location":"Paris","applyUrl":"https://jobs.ashbyhq.com/acme/2/application",
  "descriptionPlain":"Draw things","workplaceType":"OnSite"},
 {"id":"3","title":"No Link"}
]}`

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posting-api/job-board/acme" || r.URL.Query().Get("includeCompensation") != "true" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	a := New(ats.NewClient())
	a.BaseURL = serve(t, boardJSON).URL

	got, err := a.Fetch(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d postings, want 2", len(got))
	}

	sre, designer := got[0], got[1]
	if sre.CompanyName != "Acme Inc" || sre.URL != "https://jobs.ashbyhq.com/acme/1" {
		t.Errorf("unexpected %+v", sre)
	}
	if sre.WorkplaceType != domain.WorkplaceRemote || sre.Location != "Berlin" {
		t.Errorf("sre workplace/location = %q/%q", sre.WorkplaceType, sre.Location)
	}
	if sre.Description != "Keep it up" || sre.PostedAt == nil {
		t.Errorf("sre description/postedAt = %q/%v", sre.Description, sre.PostedAt)
	}
	if designer.URL != "https://jobs.ashbyhq.com/acme/2/application" || designer.ExternalID != designer.URL {
		t.Errorf("designer url = %q", designer.URL)
	}
	if designer.WorkplaceType != domain.WorkplaceOnsite || designer.Description != "Draw things" {
		t.Errorf("designer = %+v", designer)
	}
}

func TestFetchDerivesCompanyName(t *testing.T) {
	a := New(ats.NewClient())
	a.BaseURL = serve(t, `{"jobs":[{"title":"Dev","jobUrl":"https://x/1"}]}`).URL

	got, err := a.Fetch(context.Background(), "acme")
	if err != nil || len(got) != 1 {
		t.Fatalf("got %v, %v", got, err)
	}
	if got[0].CompanyName != "Acme" {
		t.Fatalf("company name = %q", got[0].CompanyName)
	}
}
