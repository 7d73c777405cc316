package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"jobsync-engine/internal/domain"
)

// ClaimStalled selects up to limit postings still pending whose updated_at
// is older than now-stuckAfter, oldest first, and refreshes their updated_at
// to now in the same transaction so the next sweep skips them.
func (d *DB) ClaimStalled(ctx context.Context, stuckAfter time.Duration, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := d.stamp()

	query, args, err := psql.
		Select("id").
		From("postings").
		Where(sq.Eq{"status": string(domain.StatusNew)}).
		Where(sq.Lt{"updated_at": formatTime(now.Add(-stuckAfter))}).
		OrderBy("updated_at ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select stalled postings: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	upd, uargs, err := psql.
		Update("postings").
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, upd, uargs...); err != nil {
		return nil, fmt.Errorf("touch stalled postings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkStale retires postings published before now-olderThan that have not
// been written for grace. Identity columns survive so a later re-ingest
// merges into the same row, and the status guard in the upsert keeps them
// stale.
func (d *DB) MarkStale(ctx context.Context, olderThan, grace time.Duration) (int64, error) {
	now := d.stamp()
	res, err := d.Pool.ExecContext(ctx, `
UPDATE postings SET
  status = 'stale',
  location = NULL,
  description = NULL,
  score = NULL,
  score_reason = NULL,
  is_remote_eu = NULL,
  remote_eu_confidence = NULL,
  remote_eu_reason = NULL,
  updated_at = ?
WHERE posted_at IS NOT NULL
  AND posted_at < ?
  AND updated_at < ?
  AND status <> 'stale';
`, formatTime(now), formatTime(now.Add(-olderThan)), formatTime(now.Add(-grace)))
	if err != nil {
		return 0, fmt.Errorf("mark stale postings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
