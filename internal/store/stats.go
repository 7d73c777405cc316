package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"jobsync-engine/internal/domain"
)

type StatusCount struct {
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type SourceCount struct {
	Kind         string `json:"kind"`
	Total        int    `json:"total"`
	NeverFetched int    `json:"neverFetched"`
}

type Stats struct {
	Postings      int             `json:"postings"`
	ByStatus      []StatusCount   `json:"byStatus"`
	Sources       []SourceCount   `json:"sources"`
	RecentSources []domain.Source `json:"recentSources"`
}

// Stats summarises postings by kind and status, sources by kind and the
// recent most recently fetched sources.
func (d *DB) Stats(ctx context.Context, recent int) (Stats, error) {
	var st Stats

	if err := d.Pool.QueryRowContext(ctx, `SELECT count(*) FROM postings;`).Scan(&st.Postings); err != nil {
		return st, fmt.Errorf("count postings: %w", err)
	}

	rows, err := d.Pool.QueryContext(ctx, `
SELECT source_kind, status, count(*)
FROM postings
GROUP BY source_kind, status
ORDER BY source_kind, status;`)
	if err != nil {
		return st, fmt.Errorf("postings by status: %w", err)
	}
	if st.ByStatus, err = collectStatusCounts(rows); err != nil {
		return st, fmt.Errorf("postings by status: %w", err)
	}

	rows, err = d.Pool.QueryContext(ctx, `
SELECT kind, count(*), sum(CASE WHEN last_fetched_at IS NULL THEN 1 ELSE 0 END)
FROM sources
GROUP BY kind
ORDER BY kind;`)
	if err != nil {
		return st, fmt.Errorf("sources by kind: %w", err)
	}
	if st.Sources, err = collectSourceCounts(rows); err != nil {
		return st, fmt.Errorf("sources by kind: %w", err)
	}

	if recent > 0 {
		query, args, err := psql.
			Select("id", "kind", "company_key", "canonical_url", "last_fetched_at").
			From("sources").
			Where(sq.NotEq{"last_fetched_at": nil}).
			OrderBy("last_fetched_at DESC").
			Limit(uint64(recent)).
			ToSql()
		if err != nil {
			return st, err
		}
		srows, err := d.Pool.QueryContext(ctx, query, args...)
		if err != nil {
			return st, fmt.Errorf("recent sources: %w", err)
		}
		if st.RecentSources, err = scanSources(srows); err != nil {
			return st, err
		}
	}
	return st, nil
}

// rowIter is the part of *sql.Rows the collectors use.
type rowIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

func collectStatusCounts(rows rowIter) ([]StatusCount, error) {
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Kind, &c.Status, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func collectSourceCounts(rows rowIter) ([]SourceCount, error) {
	defer rows.Close()
	var out []SourceCount
	for rows.Next() {
		var c SourceCount
		if err := rows.Scan(&c.Kind, &c.Total, &c.NeverFetched); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
