package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"jobsync-engine/internal/domain"
)

// EnsureSource registers a (kind, company) source if it is not known yet.
func (d *DB) EnsureSource(ctx context.Context, kind domain.SourceKind, companyKey string) (domain.Source, error) {
	if !kind.Valid() {
		return domain.Source{}, fmt.Errorf("%w: %q", domain.ErrUnknownSourceKind, kind)
	}
	key := domain.NormalizeCompanyKey(companyKey)
	if key == "" {
		return domain.Source{}, errors.New("company key is empty")
	}

	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO sources(kind, company_key, canonical_url, created_at)
VALUES(?,?,?,?)
ON CONFLICT(kind, company_key) DO NOTHING;
`, string(kind), key, kind.BoardURL(key), formatTime(d.stamp()))
	if err != nil {
		return domain.Source{}, fmt.Errorf("insert source: %w", err)
	}

	rows, err := d.Pool.QueryContext(ctx, `
SELECT id, kind, company_key, canonical_url, last_fetched_at
FROM sources WHERE kind = ? AND company_key = ?;`, string(kind), key)
	if err != nil {
		return domain.Source{}, err
	}
	out, err := scanSources(rows)
	if err != nil {
		return domain.Source{}, err
	}
	if len(out) == 0 {
		return domain.Source{}, ErrNotFound
	}
	return out[0], nil
}

// SeedSources registers every listed source in one transaction and returns
// how many were new.
func (d *DB) SeedSources(ctx context.Context, seeds map[domain.SourceKind][]string) (int, error) {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(d.stamp())
	added := 0
	for kind, keys := range seeds {
		if !kind.Valid() {
			return 0, fmt.Errorf("%w: %q", domain.ErrUnknownSourceKind, kind)
		}
		for _, k := range keys {
			k = domain.NormalizeCompanyKey(k)
			if k == "" {
				continue
			}
			res, err := tx.ExecContext(ctx, `
INSERT INTO sources(kind, company_key, canonical_url, created_at)
VALUES(?,?,?,?)
ON CONFLICT(kind, company_key) DO NOTHING;
`, string(kind), k, kind.BoardURL(k), now)
			if err != nil {
				return 0, fmt.Errorf("seed sources: %w", err)
			}
			n, _ := res.RowsAffected()
			added += int(n)
		}
	}
	return added, tx.Commit()
}

// SelectStaleSources returns up to limit sources never fetched or last
// fetched before now-staleAfter. Never-fetched sources come first, then the
// oldest fetch.
func (d *DB) SelectStaleSources(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.Source, error) {
	if limit <= 0 {
		return nil, nil
	}
	cutoff := formatTime(d.stamp().Add(-staleAfter))

	query, args, err := psql.
		Select("id", "kind", "company_key", "canonical_url", "last_fetched_at").
		From("sources").
		Where(sq.Or{
			sq.Eq{"last_fetched_at": nil},
			sq.Lt{"last_fetched_at": cutoff},
		}).
		OrderBy("last_fetched_at IS NOT NULL", "last_fetched_at ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select stale sources: %w", err)
	}
	return scanSources(rows)
}

// MarkFetched stamps lastFetchedAt with now. It is called after every
// fetch attempt, including empty and failed ones.
func (d *DB) MarkFetched(ctx context.Context, sourceID int64) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at = ? WHERE id = ?;`,
		formatTime(d.stamp()), sourceID)
	if err != nil {
		return fmt.Errorf("mark source %d fetched: %w", sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSources(rows *sql.Rows) ([]domain.Source, error) {
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var s domain.Source
		var kind string
		var last sql.NullString
		if err := rows.Scan(&s.ID, &kind, &s.CompanyKey, &s.CanonicalURL, &last); err != nil {
			return nil, err
		}
		s.Kind = domain.SourceKind(kind)
		s.LastFetchedAt = parseNullTime(last)
		out = append(out, s)
	}
	return out, rows.Err()
}
