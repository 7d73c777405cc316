package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"jobsync-engine/internal/domain"
)

// UpsertResult reports the row id and whether downstream work should be
// queued for it.
type UpsertResult struct {
	ID    int64
	IsNew bool
}

// Empty optional values are bound as NULL so COALESCE keeps stored data.
// A pending status never replaces a processed one.
const upsertPostingSQL = `
INSERT INTO postings (
  source_kind, company_key, external_id, company_id, company_name,
  title, url, location, description, workplace_type, posted_at,
  score, score_reason, status,
  is_remote_eu, remote_eu_confidence, remote_eu_reason,
  created_at, updated_at
) VALUES (
  ?, ?, ?, ?, NULLIF(?, ''),
  ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?,
  ?, NULLIF(?, ''), ?,
  ?, NULLIF(?, ''), NULLIF(?, ''),
  ?, ?
)
ON CONFLICT(source_kind, company_key, external_id) DO UPDATE SET
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
RETURNING id;
`

// UpsertPosting merges p into the store under its natural key.
func (d *DB) UpsertPosting(ctx context.Context, p domain.Posting) (UpsertResult, error) {
	p, err := NormalizePosting(p)
	if err != nil {
		return UpsertResult{}, err
	}
	now := d.stamp()

	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	companyID, err := ensureCompany(ctx, tx, p.CompanyKey, p.CompanyName, now)
	if err != nil {
		return UpsertResult{}, err
	}

	var prevStatus string
	var prevID int64
	err = tx.QueryRowContext(ctx, `
SELECT id, status FROM postings
WHERE source_kind = ? AND company_key = ? AND external_id = ?;`,
		string(p.SourceKind), p.CompanyKey, p.ExternalID,
	).Scan(&prevID, &prevStatus)
	existed := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return UpsertResult{}, fmt.Errorf("read previous posting: %w", err)
	}

	var remoteEU any
	if p.Classification.IsRemoteEU != nil {
		remoteEU = boolToInt(*p.Classification.IsRemoteEU)
	}
	var score any
	if p.Score != nil {
		score = *p.Score
	}

	var id int64
	err = tx.QueryRowContext(ctx, upsertPostingSQL,
		string(p.SourceKind), p.CompanyKey, p.ExternalID, companyID, p.CompanyName,
		p.Title, p.URL, p.Location, p.Description, p.WorkplaceType, formatTimePtr(p.PostedAt),
		score, p.ScoreReason, string(p.Status),
		remoteEU, p.Classification.Confidence, p.Classification.Reason,
		formatTime(now), formatTime(now),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// RETURNING came back empty; look the row up by its natural key.
		err = tx.QueryRowContext(ctx, `
SELECT id FROM postings
WHERE source_kind = ? AND company_key = ? AND external_id = ?;`,
			string(p.SourceKind), p.CompanyKey, p.ExternalID,
		).Scan(&id)
	}
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert posting %s/%s/%s: %w", p.SourceKind, p.CompanyKey, p.ExternalID, err)
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, err
	}
	committed = true

	return UpsertResult{
		ID:    id,
		IsNew: !existed || domain.Status(prevStatus).Pending(),
	}, nil
}

// NormalizePosting rejects postings the schema cannot hold (unknown kind or
// status, missing key parts) and trims the rest. Every repository runs it
// before writing.
func NormalizePosting(p domain.Posting) (domain.Posting, error) {
	if !p.SourceKind.Valid() {
		return p, fmt.Errorf("%w: %q", domain.ErrUnknownSourceKind, p.SourceKind)
	}
	st, err := domain.ParseStatus(string(p.Status))
	if err != nil {
		return p, err
	}
	p.Status = st
	p.CompanyKey = domain.NormalizeCompanyKey(p.CompanyKey)
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.Title = strings.TrimSpace(p.Title)
	p.URL = strings.TrimSpace(p.URL)
	if p.CompanyKey == "" || p.ExternalID == "" {
		return p, errors.New("posting natural key is incomplete")
	}
	if p.Title == "" || p.URL == "" {
		return p, errors.New("posting title and url are required")
	}
	return p, nil
}

const postingColumns = `
id, source_kind, company_key, external_id, company_name,
title, url, location, description, workplace_type, posted_at,
score, score_reason, status,
is_remote_eu, remote_eu_confidence, remote_eu_reason,
created_at, updated_at`

func (d *DB) GetPosting(ctx context.Context, id int64) (domain.Posting, error) {
	row := d.Pool.QueryRowContext(ctx, `SELECT `+postingColumns+` FROM postings WHERE id = ?;`, id)
	return scanPosting(row)
}

func (d *DB) GetPostingByKey(ctx context.Context, k domain.NaturalKey) (domain.Posting, error) {
	row := d.Pool.QueryRowContext(ctx, `SELECT `+postingColumns+`
FROM postings
WHERE source_kind = ? AND company_key = ? AND external_id = ?;`,
		string(k.Kind), domain.NormalizeCompanyKey(k.CompanyKey), strings.TrimSpace(k.ExternalID))
	return scanPosting(row)
}

func (d *DB) CountPostings(ctx context.Context) (int, error) {
	var n int
	err := d.Pool.QueryRowContext(ctx, `SELECT count(*) FROM postings;`).Scan(&n)
	return n, err
}

func scanPosting(row *sql.Row) (domain.Posting, error) {
	var (
		p                                      domain.Posting
		kind, status, created, updated         string
		companyName, location, desc, workplace sql.NullString
		postedAt, scoreReason, conf, reason    sql.NullString
		score, remoteEU                        sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &kind, &p.CompanyKey, &p.ExternalID, &companyName,
		&p.Title, &p.URL, &location, &desc, &workplace, &postedAt,
		&score, &scoreReason, &status,
		&remoteEU, &conf, &reason,
		&created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}

	p.SourceKind = domain.SourceKind(kind)
	p.Status = domain.Status(status)
	p.CompanyName = companyName.String
	p.Location = location.String
	p.Description = desc.String
	p.WorkplaceType = workplace.String
	p.PostedAt = parseNullTime(postedAt)
	p.ScoreReason = scoreReason.String
	if score.Valid {
		s := int(score.Int64)
		p.Score = &s
	}
	if remoteEU.Valid {
		b := remoteEU.Int64 != 0
		p.Classification.IsRemoteEU = &b
	}
	p.Classification.Confidence = conf.String
	p.Classification.Reason = reason.String
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
