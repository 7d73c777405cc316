package lever

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/ingest/ats"
)

const (
	DefaultBaseURL = "https://api.lever.co"
	EUBaseURL      = "https://api.eu.lever.co"
)

// Adapter reads the public postings API. Sites hosted in Lever's EU region
// answer 404 on the global endpoint, so a miss there is retried against
// EUBaseURL.
type Adapter struct {
	c         *ats.Client
	BaseURL   string
	EUBaseURL string
}

func New(c *ats.Client) *Adapter {
	return &Adapter{c: c, BaseURL: DefaultBaseURL, EUBaseURL: EUBaseURL}
}

func (a *Adapter) Kind() domain.SourceKind { return domain.KindLever }

type posting struct {
	ID               string  `json:"id"`
	Text             string  `json:"text"` // title
	HostedURL        string  `json:"hostedUrl"`
	ApplyURL         string  `json:"applyUrl"`
	CreatedAt        float64 `json:"createdAt"` // ms epoch
	Description      string  `json:"description"`
	DescriptionPlain string  `json:"descriptionPlain"`
	WorkplaceType    string  `json:"workplaceType"`
	Categories       struct {
		Location   string `json:"location"`
		Team       string `json:"team"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
}

func (a *Adapter) Fetch(ctx context.Context, site string) ([]domain.Posting, error) {
	var postings []posting
	found := false
	for _, base := range []string{a.BaseURL, a.EUBaseURL} {
		if base == "" {
			continue
		}
		apiURL := fmt.Sprintf("%s/v0/postings/%s?mode=json", base, url.PathEscape(site))
		ok, err := a.c.GetJSON(ctx, apiURL, &postings)
		if err != nil {
			return nil, fmt.Errorf("lever %s: %w", site, err)
		}
		if ok {
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}

	name := domain.CompanyNameFromKey(site)
	out := make([]domain.Posting, 0, len(postings))
	for _, p := range postings {
		title := ats.CleanText(p.Text)
		jobURL := strings.TrimSpace(p.HostedURL)
		if title == "" || jobURL == "" {
			continue
		}
		loc := ats.NormalizeLocation(p.Categories.Location)

		desc := p.DescriptionPlain
		if strings.TrimSpace(desc) == "" {
			desc = p.Description
		}

		var posted *time.Time
		if p.CreatedAt > 0 {
			t := time.UnixMilli(int64(p.CreatedAt)).UTC()
			posted = &t
		}

		out = append(out, domain.Posting{
			SourceKind:    domain.KindLever,
			CompanyKey:    site,
			CompanyName:   name,
			ExternalID:    jobURL,
			Title:         title,
			URL:           jobURL,
			Location:      loc,
			Description:   ats.Description(desc),
			WorkplaceType: ats.Workplace(p.WorkplaceType, loc, title),
			PostedAt:      posted,
			Status:        domain.StatusNew,
		})
	}
	return out, nil
}
