package workable

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/ingest/ats"
)

const DefaultBaseURL = "https://apply.workable.com"

type Adapter struct {
	c       *ats.Client
	BaseURL string
}

func New(c *ats.Client) *Adapter {
	return &Adapter{c: c, BaseURL: DefaultBaseURL}
}

func (a *Adapter) Kind() domain.SourceKind { return domain.KindWorkable }

type accountResponse struct {
	Name string `json:"name"`
	Jobs []job  `json:"jobs"`
}

type job struct {
	Shortcode      string `json:"shortcode"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	ApplicationURL string `json:"application_url"`
	PublishedOn    string `json:"published_on"`
	CreatedAt      string `json:"created_at"`
	Country        string `json:"country"`
	City           string `json:"city"`
	Telecommuting  bool   `json:"telecommuting"`
	Description    string `json:"description"`
}

func (a *Adapter) Fetch(ctx context.Context, shortcode string) ([]domain.Posting, error) {
	apiURL := fmt.Sprintf("%s/api/v1/widget/accounts/%s", a.BaseURL, url.PathEscape(shortcode))

	var acct accountResponse
	found, err := a.c.GetJSON(ctx, apiURL, &acct)
	if err != nil {
		return nil, fmt.Errorf("workable %s: %w", shortcode, err)
	}
	if !found {
		return nil, nil
	}

	name := ats.CleanText(acct.Name)
	if name == "" {
		name = domain.CompanyNameFromKey(shortcode)
	}

	out := make([]domain.Posting, 0, len(acct.Jobs))
	for _, j := range acct.Jobs {
		title := ats.CleanText(j.Title)
		jobURL := strings.TrimSpace(j.URL)
		if title == "" || jobURL == "" {
			continue
		}

		var parts []string
		for _, p := range []string{j.City, j.Country} {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		loc := ats.NormalizeLocation(strings.Join(parts, ", "))

		hint := ""
		if j.Telecommuting {
			hint = domain.WorkplaceRemote
		}
		posted := ats.ParseTime(j.PublishedOn)
		if posted == nil {
			posted = ats.ParseTime(j.CreatedAt)
		}

		out = append(out, domain.Posting{
			SourceKind:    domain.KindWorkable,
			CompanyKey:    shortcode,
			CompanyName:   name,
			ExternalID:    jobURL,
			Title:         title,
			URL:           jobURL,
			Location:      loc,
			Description:   ats.Description(j.Description),
			WorkplaceType: ats.Workplace(hint, loc, title),
			PostedAt:      posted,
			Status:        domain.StatusNew,
		})
	}
	return out, nil
}
