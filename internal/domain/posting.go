package domain

import "time"

type NaturalKey struct {
	Kind       SourceKind
	CompanyKey string
	ExternalID string
}

// Classification is written by the downstream classifier only.
type Classification struct {
	IsRemoteEU *bool  `json:"isRemoteEU,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type Posting struct {
	ID            int64
	SourceKind    SourceKind
	CompanyKey    string
	CompanyName   string
	ExternalID    string
	Title         string
	Location      string
	URL           string
	Description   string
	WorkplaceType string // remote/hybrid/on-site or ""
	PostedAt      *time.Time

	Score          *int
	ScoreReason    string
	Status         Status
	Classification Classification

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Posting) Key() NaturalKey {
	return NaturalKey{Kind: p.SourceKind, CompanyKey: p.CompanyKey, ExternalID: p.ExternalID}
}

const (
	WorkplaceRemote = "remote"
	WorkplaceHybrid = "hybrid"
	WorkplaceOnsite = "on-site"
)
