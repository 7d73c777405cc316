package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"jobsync-engine/internal/queue"
)

// Queue is a queue.Transport backed by the queue_messages table. Received
// messages stay invisible for the visibility window; a message retried
// after maxAttempts deliveries moves to the dead state.
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
	now := formatTime(q.db.stamp())

	ins := psql.Insert("queue_messages").Columns("id", "queue", "body", "state", "attempts", "visible_at", "created_at")
	for _, m := range msgs {
		ins = ins.Values(uuid.NewString(), q.name, string(m.Encode()), "ready", 0, now, now)
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return err
	}
	if _, err := q.db.Pool.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("queue send: %w", err)
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context, max int) ([]queue.Delivery, error) {
	if max <= 0 {
		return nil, nil
	}
	now := q.db.stamp()

	query, args, err := psql.
		Select("id", "body", "attempts").
		From("queue_messages").
		Where(sq.Eq{"queue": q.name, "state": "ready"}).
		Where(sq.LtOrEq{"visible_at": formatTime(now)}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(max)).
		ToSql()
	if err != nil {
		return nil, err
	}

	tx, err := q.db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue receive: %w", err)
	}
	var out []queue.Delivery
	for rows.Next() {
		var d queue.Delivery
		var body string
		if err := rows.Scan(&d.ID, &body, &d.Attempts); err != nil {
			rows.Close()
			return nil, err
		}
		d.Body = []byte(body)
		d.Attempts++
		out = append(out, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]string, len(out))
	for i, d := range out {
		ids[i] = d.ID
	}
	upd, uargs, err := psql.Update("queue_messages").
		Set("attempts", sq.Expr("attempts + 1")).
		Set("visible_at", formatTime(now.Add(q.visibility))).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, upd, uargs...); err != nil {
		return nil, fmt.Errorf("queue lease: %w", err)
	}
	return out, tx.Commit()
}

func (q *Queue) Ack(ctx context.Context, id string) error {
	res, err := q.db.Pool.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = ? AND queue = ?;`, id, q.name)
	if err != nil {
		return fmt.Errorf("queue ack: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queue) Retry(ctx context.Context, id string, delay time.Duration) error {
	now := q.db.stamp()
	res, err := q.db.Pool.ExecContext(ctx, `
UPDATE queue_messages SET
  state = CASE WHEN ? > 0 AND attempts >= ? THEN 'dead' ELSE 'ready' END,
  visible_at = ?
WHERE id = ? AND queue = ?;
`, q.maxAttempts, q.maxAttempts, formatTime(now.Add(delay)), id, q.name)
	if err != nil {
		return fmt.Errorf("queue retry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Depth counts messages by state.
func (q *Queue) Depth(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.Pool.QueryContext(ctx,
		`SELECT state, count(*) FROM queue_messages WHERE queue = ? GROUP BY state;`, q.name)
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
