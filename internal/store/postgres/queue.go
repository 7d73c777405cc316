package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"jobsync-engine/internal/queue"
	"jobsync-engine/internal/store"
)

// Queue is the queue_messages transport for PostgreSQL. Receive leases rows
// with FOR UPDATE SKIP LOCKED so consumers in several processes never get
// the same message.
type Queue struct {
	db          *DB
	name        string
	maxAttempts int
	visibility  time.Duration
}

func (d *DB) Queue(name string, maxAttempts int, visibility time.Duration) *Queue {
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &Queue{db: d, name: name, maxAttempts: maxAttempts, visibility: visibility}
}

func (q *Queue) Send(ctx context.Context, msgs []queue.Message) error {
	if len(msgs) > queue.MaxBatch {
		return fmt.Errorf("batch of %d exceeds limit %d", len(msgs), queue.MaxBatch)
	}
	if len(msgs) == 0 {
		return nil
	}
	now := q.db.stamp()

	// One transaction so a batch is all or nothing.
	tx, err := q.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("queue send: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, m := range msgs {
		b.Queue(`INSERT INTO queue_messages(id, queue, body, state, attempts, visible_at, created_at)
VALUES ($1, $2, $3, 'ready', 0, $4, $4)`, uuid.NewString(), q.name, string(m.Encode()), now)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("queue send: %w", err)
	}
	return tx.Commit(ctx)
}

func (q *Queue) Receive(ctx context.Context, max int) ([]queue.Delivery, error) {
	if max <= 0 {
		return nil, nil
	}
	now := q.db.stamp()
	rows, err := q.db.Pool.Query(ctx, `
UPDATE queue_messages SET attempts = attempts + 1, visible_at = $1
WHERE id IN (
  SELECT id FROM queue_messages
  WHERE queue = $2 AND state = 'ready' AND visible_at <= $3
  ORDER BY created_at ASC, id ASC
  LIMIT $4
  FOR UPDATE SKIP LOCKED
)
RETURNING id, body, attempts`, now.Add(q.visibility), q.name, now, max)
	if err != nil {
		return nil, fmt.Errorf("queue receive: %w", err)
	}
	defer rows.Close()

	var out []queue.Delivery
	for rows.Next() {
		var d queue.Delivery
		var body string
		if err := rows.Scan(&d.ID, &body, &d.Attempts); err != nil {
			return nil, err
		}
		d.Body = []byte(body)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *Queue) Ack(ctx context.Context, id string) error {
	tag, err := q.db.Pool.Exec(ctx, `DELETE FROM queue_messages WHERE id = $1 AND queue = $2`, id, q.name)
	if err != nil {
		return fmt.Errorf("queue ack: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *Queue) Retry(ctx context.Context, id string, delay time.Duration) error {
	tag, err := q.db.Pool.Exec(ctx, `
UPDATE queue_messages SET
  state = CASE WHEN $1::int > 0 AND attempts >= $1::int THEN 'dead' ELSE 'ready' END,
  visible_at = $2
WHERE id = $3 AND queue = $4`, q.maxAttempts, q.db.stamp().Add(delay), id, q.name)
	if err != nil {
		return fmt.Errorf("queue retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *Queue) Depth(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.Pool.Query(ctx, `SELECT state, count(*) FROM queue_messages WHERE queue = $1 GROUP BY state`, q.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[state] = n
	}
	return out, rows.Err()
}
