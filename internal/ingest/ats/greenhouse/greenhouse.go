package greenhouse

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/ingest/ats"
)

const DefaultBaseURL = "https://boards-api.greenhouse.io"

type Adapter struct {
	c       *ats.Client
	BaseURL string
}

func New(c *ats.Client) *Adapter {
	return &Adapter{c: c, BaseURL: DefaultBaseURL}
}

func (a *Adapter) Kind() domain.SourceKind { return domain.KindGreenhouse }

type boardResponse struct {
	Jobs []job `json:"jobs"`
}

type job struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	AbsoluteURL string `json:"absolute_url"`
	UpdatedAt   string `json:"updated_at"`
	Content     string `json:"content"` // entity-escaped html
	CompanyName string `json:"company_name"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
}

func (a *Adapter) Fetch(ctx context.Context, token string) ([]domain.Posting, error) {
	apiURL := fmt.Sprintf("%s/v1/boards/%s/jobs?content=true", a.BaseURL, url.PathEscape(token))

	var board boardResponse
	found, err := a.c.GetJSON(ctx, apiURL, &board)
	if err != nil {
		return nil, fmt.Errorf("greenhouse %s: %w", token, err)
	}
	if !found {
		return nil, nil
	}

	out := make([]domain.Posting, 0, len(board.Jobs))
	for _, j := range board.Jobs {
		title := ats.CleanText(j.Title)
		if title == "" {
			continue
		}
		jobURL := ats.StripQuery(strings.TrimSpace(j.AbsoluteURL))
		if jobURL == "" {
			if j.ID == 0 {
				continue
			}
			jobURL = fmt.Sprintf("%s/jobs/%d", domain.KindGreenhouse.BoardURL(token), j.ID)
		}
		loc := ats.NormalizeLocation(j.Location.Name)

		out = append(out, domain.Posting{
			SourceKind:    domain.KindGreenhouse,
			CompanyKey:    token,
			CompanyName:   ats.CleanText(j.CompanyName),
			ExternalID:    jobURL,
			Title:         title,
			URL:           jobURL,
			Location:      loc,
			Description:   ats.Description(j.Content),
			WorkplaceType: ats.Workplace("", loc, title),
			PostedAt:      ats.ParseTime(j.UpdatedAt),
			Status:        domain.StatusNew,
		})
	}
	return out, nil
}
