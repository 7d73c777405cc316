package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"jobsync-engine/internal/store"
)

func (d *DB) Stats(ctx context.Context, recent int) (store.Stats, error) {
	var st store.Stats

	if err := d.Pool.QueryRow(ctx, `SELECT count(*) FROM postings`).Scan(&st.Postings); err != nil {
		return st, fmt.Errorf("count postings: %w", err)
	}

	rows, err := d.Pool.Query(ctx, `
SELECT source_kind, status, count(*)
FROM postings
GROUP BY source_kind, status
ORDER BY source_kind, status`)
	if err != nil {
		return st, fmt.Errorf("postings by status: %w", err)
	}
	for rows.Next() {
		var c store.StatusCount
		if err := rows.Scan(&c.Kind, &c.Status, &c.Count); err != nil {
			rows.Close()
			return st, err
		}
		st.ByStatus = append(st.ByStatus, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("postings by status: %w", err)
	}

	rows, err = d.Pool.Query(ctx, `
SELECT kind, count(*), count(*) FILTER (WHERE last_fetched_at IS NULL)
FROM sources
GROUP BY kind
ORDER BY kind`)
	if err != nil {
		return st, fmt.Errorf("sources by kind: %w", err)
	}
	for rows.Next() {
		var c store.SourceCount
		if err := rows.Scan(&c.Kind, &c.Total, &c.NeverFetched); err != nil {
			rows.Close()
			return st, err
		}
		st.Sources = append(st.Sources, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
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
		srows, err := d.Pool.Query(ctx, query, args...)
		if err != nil {
			return st, fmt.Errorf("recent sources: %w", err)
		}
		if st.RecentSources, err = scanSources(srows); err != nil {
			return st, err
		}
	}
	return st, nil
}
