// Package ingest is the write path shared by the scheduler and the HTTP
// endpoint: validate, upsert, enqueue.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"jobsync-engine/internal/domain"
)

// Input is one posting as submitted to the ingestion endpoint.
type Input struct {
	Title         string `json:"title"`
	CompanyKey    string `json:"companyKey"`
	CompanyName   string `json:"companyName,omitempty"`
	URL           string `json:"url"`
	ExternalID    string `json:"externalId"`
	SourceKind    string `json:"sourceKind"`
	Location      string `json:"location,omitempty"`
	Description   string `json:"description,omitempty"`
	WorkplaceType string `json:"workplaceType,omitempty"`
	PostedAt      string `json:"postedAt,omitempty"` // RFC 3339
	Status        string `json:"status,omitempty"`
	Score         *int   `json:"score,omitempty"`
	ScoreReason   string `json:"scoreReason,omitempty"`
}

type InvalidItem struct {
	Index  int      `json:"index"`
	Errors []string `json:"errors"`
}

// Validate checks every item and returns one entry per invalid item, in
// input order. A nil result means the whole batch may be written.
func Validate(items []Input) []InvalidItem {
	var out []InvalidItem
	for i, in := range items {
		if errs := in.problems(); len(errs) > 0 {
			out = append(out, InvalidItem{Index: i, Errors: errs})
		}
	}
	return out
}

func (in Input) problems() []string {
	var errs []string
	required := []struct{ name, val string }{
		{"title", in.Title},
		{"companyKey", in.CompanyKey},
		{"url", in.URL},
		{"externalId", in.ExternalID},
		{"sourceKind", in.SourceKind},
	}
	for _, f := range required {
		if strings.TrimSpace(f.val) == "" {
			errs = append(errs, f.name+" is required")
		}
	}

	if strings.TrimSpace(in.SourceKind) != "" {
		if _, err := domain.ParseSourceKind(in.SourceKind); err != nil {
			errs = append(errs, fmt.Sprintf("sourceKind %q is not supported", in.SourceKind))
		}
	}
	if _, err := domain.ParseStatus(in.Status); err != nil {
		errs = append(errs, fmt.Sprintf("status %q is not a known status", in.Status))
	}
	if strings.TrimSpace(in.PostedAt) != "" {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(in.PostedAt)); err != nil {
			errs = append(errs, "postedAt must be an RFC 3339 timestamp")
		}
	}
	if domain.IsBoardURL(in.ExternalID) {
		errs = append(errs, "externalId points at a job board, not a job")
	}
	return errs
}

// ToPosting converts a validated input. Call Validate first.
func (in Input) ToPosting() domain.Posting {
	kind, _ := domain.ParseSourceKind(in.SourceKind)
	status, _ := domain.ParseStatus(in.Status)

	p := domain.Posting{
		SourceKind:    kind,
		CompanyKey:    domain.NormalizeCompanyKey(in.CompanyKey),
		CompanyName:   strings.TrimSpace(in.CompanyName),
		ExternalID:    strings.TrimSpace(in.ExternalID),
		Title:         strings.TrimSpace(in.Title),
		URL:           strings.TrimSpace(in.URL),
		Location:      strings.TrimSpace(in.Location),
		Description:   in.Description,
		WorkplaceType: strings.TrimSpace(in.WorkplaceType),
		Score:         in.Score,
		ScoreReason:   strings.TrimSpace(in.ScoreReason),
		Status:        status,
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(in.PostedAt)); err == nil {
		t = t.UTC()
		p.PostedAt = &t
	}
	return p
}
