package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/store"
)

const insertSourceSQL = `
INSERT INTO sources(kind, company_key, canonical_url, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (kind, company_key) DO NOTHING`

func (d *DB) EnsureSource(ctx context.Context, kind domain.SourceKind, companyKey string) (domain.Source, error) {
	if !kind.Valid() {
		return domain.Source{}, fmt.Errorf("%w: %q", domain.ErrUnknownSourceKind, kind)
	}
	key := domain.NormalizeCompanyKey(companyKey)
	if key == "" {
		return domain.Source{}, errors.New("company key is empty")
	}
	if _, err := d.Pool.Exec(ctx, insertSourceSQL, string(kind), key, kind.BoardURL(key), d.stamp()); err != nil {
		return domain.Source{}, fmt.Errorf("insert source: %w", err)
	}

	rows, err := d.Pool.Query(ctx, `
SELECT id, kind, company_key, canonical_url, last_fetched_at
FROM sources WHERE kind = $1 AND company_key = $2`, string(kind), key)
	if err != nil {
		return domain.Source{}, err
	}
	out, err := scanSources(rows)
	if err != nil {
		return domain.Source{}, err
	}
	if len(out) == 0 {
		return domain.Source{}, store.ErrNotFound
	}
	return out[0], nil
}

// SeedSources registers many sources in one round trip and returns how
// many were new.
func (d *DB) SeedSources(ctx context.Context, seeds map[domain.SourceKind][]string) (int, error) {
	now := d.stamp()
	b := &pgx.Batch{}
	count := 0
	for kind, keys := range seeds {
		if !kind.Valid() {
			return 0, fmt.Errorf("%w: %q", domain.ErrUnknownSourceKind, kind)
		}
		for _, k := range keys {
			k = domain.NormalizeCompanyKey(k)
			if k == "" {
				continue
			}
			b.Queue(insertSourceSQL, string(kind), k, kind.BoardURL(k), now)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}

	br := d.Pool.SendBatch(ctx, b)
	added := 0
	for i := 0; i < count; i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return added, fmt.Errorf("seed sources: %w", err)
		}
		added += int(tag.RowsAffected())
	}
	return added, br.Close()
}

func (d *DB) SelectStaleSources(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.Source, error) {
	if limit <= 0 {
		return nil, nil
	}
	query, args, err := staleSourcesQuery(d.stamp().Add(-staleAfter), limit)
	if err != nil {
		return nil, err
	}
	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select stale sources: %w", err)
	}
	return scanSources(rows)
}

func staleSourcesQuery(cutoff time.Time, limit int) (string, []any, error) {
	return psql.
		Select("id", "kind", "company_key", "canonical_url", "last_fetched_at").
		From("sources").
		Where(sq.Or{
			sq.Eq{"last_fetched_at": nil},
			sq.Lt{"last_fetched_at": cutoff},
		}).
		OrderBy("last_fetched_at ASC NULLS FIRST", "id ASC").
		Limit(uint64(limit)).
		ToSql()
}

func (d *DB) MarkFetched(ctx context.Context, sourceID int64) error {
	tag, err := d.Pool.Exec(ctx, `UPDATE sources SET last_fetched_at = $1 WHERE id = $2`, d.stamp(), sourceID)
	if err != nil {
		return fmt.Errorf("mark source %d fetched: %w", sourceID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanSources(rows pgx.Rows) ([]domain.Source, error) {
	defer rows.Close()
	var out []domain.Source
	for rows.Next() {
		var s domain.Source
		var kind string
		if err := rows.Scan(&s.ID, &kind, &s.CompanyKey, &s.CanonicalURL, &s.LastFetchedAt); err != nil {
			return nil, err
		}
		s.Kind = domain.SourceKind(kind)
		if s.LastFetchedAt != nil {
			t := s.LastFetchedAt.UTC()
			s.LastFetchedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
