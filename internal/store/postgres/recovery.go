package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// ClaimStalled locks and touches stalled pending postings in one
// statement. SKIP LOCKED lets several sweepers run side by side.
func (d *DB) ClaimStalled(ctx context.Context, stuckAfter time.Duration, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := d.stamp()
	rows, err := d.Pool.Query(ctx, `
UPDATE postings SET updated_at = $1
WHERE id IN (
  SELECT id FROM postings
  WHERE status = 'new' AND updated_at < $2
  ORDER BY updated_at ASC, id ASC
  LIMIT $3
  FOR UPDATE SKIP LOCKED
)
RETURNING id`, now, now.Add(-stuckAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("claim stalled postings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

// MarkStale retires postings published before now-olderThan that have not
// been written for grace.
func (d *DB) MarkStale(ctx context.Context, olderThan, grace time.Duration) (int64, error) {
	now := d.stamp()
	tag, err := d.Pool.Exec(ctx, `
UPDATE postings SET
  status = 'stale',
  location = NULL,
  description = NULL,
  score = NULL,
  score_reason = NULL,
  is_remote_eu = NULL,
  remote_eu_confidence = NULL,
  remote_eu_reason = NULL,
  updated_at = $1
WHERE posted_at IS NOT NULL
  AND posted_at < $2
  AND updated_at < $3
  AND status <> 'stale'`, now, now.Add(-olderThan), now.Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("mark stale postings: %w", err)
	}
	return tag.RowsAffected(), nil
}
