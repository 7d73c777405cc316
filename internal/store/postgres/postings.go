package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/store"
)

// upsertPostingSQL reads the prior status and merges in one statement; both
// CTEs see the same snapshot, so prev holds the row as it was before.
const upsertPostingSQL = `
WITH prev AS (
  SELECT status FROM postings
  WHERE source_kind = $1 AND company_key = $2 AND external_id = $3
), up AS (
  INSERT INTO postings (
    source_kind, company_key, external_id, company_id, company_name,
    title, url, location, description, workplace_type, posted_at,
    score, score_reason, status,
    is_remote_eu, remote_eu_confidence, remote_eu_reason,
    created_at, updated_at
  ) VALUES (
    $1, $2, $3, $4, NULLIF($5, ''),
    $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11,
    $12, NULLIF($13, ''), $14,
    $15, NULLIF($16, ''), NULLIF($17, ''),
    $18, $18
  )
  ON CONFLICT (source_kind, company_key, external_id) DO UPDATE SET
    company_id           = COALESCE(excluded.company_id, postings.company_id),
    company_name         = COALESCE(excluded.company_name, postings.company_name),
    title                = COALESCE(NULLIF(excluded.title, ''), postings.title),
    url                  = COALESCE(NULLIF(excluded.url, ''), postings.url),
    location             = COALESCE(excluded.location, postings.location),
    description          = COALESCE(excluded.description, postings.description),
    workplace_type       = COALESCE(excluded.workplace_type, postings.workplace_type),
    posted_at            = COALESCE(excluded.posted_at, postings.posted_at),
    score                = COALESCE(excluded.score, postings.score),
    score_reason         = COALESCE(excluded.score_reason, postings.score_reason),
    is_remote_eu         = COALESCE(excluded.is_remote_eu, postings.is_remote_eu),
    remote_eu_confidence = COALESCE(excluded.remote_eu_confidence, postings.remote_eu_confidence),
    remote_eu_reason     = COALESCE(excluded.remote_eu_reason, postings.remote_eu_reason),
    status = CASE
      WHEN postings.status <> 'new' AND excluded.status = 'new' THEN postings.status
      ELSE excluded.status
    END,
    updated_at = excluded.updated_at
  RETURNING id
)
SELECT up.id, (SELECT status FROM prev) FROM up`

func (d *DB) UpsertPosting(ctx context.Context, p domain.Posting) (store.UpsertResult, error) {
	p, err := store.NormalizePosting(p)
	if err != nil {
		return store.UpsertResult{}, err
	}
	now := d.stamp()

	companyID, err := d.ensureCompany(ctx, p.CompanyKey, p.CompanyName, now)
	if err != nil {
		return store.UpsertResult{}, err
	}

	var id int64
	var prev *string
	err = d.Pool.QueryRow(ctx, upsertPostingSQL,
		string(p.SourceKind), p.CompanyKey, p.ExternalID, companyID, p.CompanyName,
		p.Title, p.URL, p.Location, p.Description, p.WorkplaceType, p.PostedAt,
		p.Score, p.ScoreReason, string(p.Status),
		p.Classification.IsRemoteEU, p.Classification.Confidence, p.Classification.Reason,
		now,
	).Scan(&id, &prev)
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("upsert posting %s/%s/%s: %w", p.SourceKind, p.CompanyKey, p.ExternalID, err)
	}

	return store.UpsertResult{
		ID:    id,
		IsNew: prev == nil || domain.Status(*prev).Pending(),
	}, nil
}

func (d *DB) EnsureCompany(ctx context.Context, key, name string) (int64, error) {
	return d.ensureCompany(ctx, key, name, d.stamp())
}

func (d *DB) ensureCompany(ctx context.Context, key, name string, now time.Time) (int64, error) {
	key = domain.NormalizeCompanyKey(key)
	if key == "" {
		return 0, errors.New("company key is empty")
	}
	if name == "" {
		name = domain.CompanyNameFromKey(key)
	}
	if _, err := d.Pool.Exec(ctx,
		`INSERT INTO companies(key, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		key, name, now); err != nil {
		return 0, fmt.Errorf("insert company: %w", err)
	}
	var id int64
	if err := d.Pool.QueryRow(ctx, `SELECT id FROM companies WHERE key = $1`, key).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup company %q: %w", key, err)
	}
	return id, nil
}

const postingColumns = `
id, source_kind, company_key, external_id, COALESCE(company_name, ''),
title, url, COALESCE(location, ''), COALESCE(description, ''), COALESCE(workplace_type, ''), posted_at,
score, COALESCE(score_reason, ''), status,
is_remote_eu, COALESCE(remote_eu_confidence, ''), COALESCE(remote_eu_reason, ''),
created_at, updated_at`

func (d *DB) GetPosting(ctx context.Context, id int64) (domain.Posting, error) {
	var p domain.Posting
	var kind, status string
	err := d.Pool.QueryRow(ctx, `SELECT `+postingColumns+` FROM postings WHERE id = $1`, id).Scan(
		&p.ID, &kind, &p.CompanyKey, &p.ExternalID, &p.CompanyName,
		&p.Title, &p.URL, &p.Location, &p.Description, &p.WorkplaceType, &p.PostedAt,
		&p.Score, &p.ScoreReason, &status,
		&p.Classification.IsRemoteEU, &p.Classification.Confidence, &p.Classification.Reason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, notFound(err)
	}
	p.SourceKind = domain.SourceKind(kind)
	p.Status = domain.Status(status)
	return p, nil
}

func (d *DB) CountPostings(ctx context.Context) (int, error) {
	var n int
	err := d.Pool.QueryRow(ctx, `SELECT count(*) FROM postings`).Scan(&n)
	return n, err
}
