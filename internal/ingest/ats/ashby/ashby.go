package ashby

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/ingest/ats"
)

const DefaultBaseURL = "https://api.ashbyhq.com"

type Adapter struct {
	c       *ats.Client
	BaseURL string
}

func New(c *ats.Client) *Adapter {
	return &Adapter{c: c, BaseURL: DefaultBaseURL}
}

func (a *Adapter) Kind() domain.SourceKind { return domain.KindAshby }

type boardResponse struct {
	Title string `json:"title"`
	Jobs  []job  `json:"jobs"`
}

type job struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Location         string `json:"location"`
	LocationName     string `json:"locationName"`
	DescriptionHTML  string `json:"descriptionHtml"`
	DescriptionPlain string `json:"descriptionPlain"`
	JobURL           string `json:"jobUrl"`
	ApplyURL         string `json:"applyUrl"`
	IsRemote         *bool  `json:"isRemote"`
	WorkplaceType    string `json:"workplaceType"`
	PublishedAt      string `json:"publishedAt"`
}

func (a *Adapter) Fetch(ctx context.Context, slug string) ([]domain.Posting, error) {
	apiURL := fmt.Sprintf("%s/posting-api/job-board/%s?includeCompensation=true", a.BaseURL, url.PathEscape(slug))

	var board boardResponse
	found, err := a.c.GetJSON(ctx, apiURL, &board)
	if err != nil {
		return nil, fmt.Errorf("ashby %s: %w", slug, err)
	}
	if !found {
		return nil, nil
	}

	name := ats.CleanText(board.Title)
	if name == "" {
		name = domain.CompanyNameFromKey(slug)
	}

	out := make([]domain.Posting, 0, len(board.Jobs))
	for _, j := range board.Jobs {
		title := ats.CleanText(j.Title)
		jobURL := firstNonEmpty(j.JobURL, j.ApplyURL)
		if title == "" || jobURL == "" {
			continue
		}
		loc := ats.NormalizeLocation(firstNonEmpty(j.LocationName, j.Location))

		hint := j.WorkplaceType
		if j.IsRemote != nil && *j.IsRemote {
			hint = domain.WorkplaceRemote
		}

		out = append(out, domain.Posting{
			SourceKind:    domain.KindAshby,
			CompanyKey:    slug,
			CompanyName:   name,
			ExternalID:    jobURL,
			Title:         title,
			URL:           jobURL,
			Location:      loc,
			Description:   ats.Description(firstNonEmpty(j.DescriptionHTML, j.DescriptionPlain)),
			WorkplaceType: ats.Workplace(hint, loc, title),
			PostedAt:      ats.ParseTime(j.PublishedAt),
			Status:        domain.StatusNew,
		})
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
