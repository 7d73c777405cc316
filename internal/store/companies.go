package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobsync-engine/internal/domain"
)

// EnsureCompany returns the id of the company with the given key, creating
// it when it is missing. An existing name is never overwritten.
func (d *DB) EnsureCompany(ctx context.Context, key, name string) (int64, error) {
	return ensureCompany(ctx, d.Pool, key, name, d.stamp())
}

func ensureCompany(ctx context.Context, q querier, key, name string, now time.Time) (int64, error) {
	key = domain.NormalizeCompanyKey(key)
	if key == "" {
		return 0, errors.New("company key is empty")
	}
	if name == "" {
		name = domain.CompanyNameFromKey(key)
	}

	if _, err := q.ExecContext(ctx, `
INSERT INTO companies(key, name, created_at)
VALUES(?,?,?)
ON CONFLICT(key) DO NOTHING;
`, key, name, formatTime(now)); err != nil {
		return 0, fmt.Errorf("insert company: %w", err)
	}

	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM companies WHERE key = ? LIMIT 1;`, key).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup company %q: %w", key, err)
	}
	return id, nil
}

func (d *DB) GetCompany(ctx context.Context, key string) (domain.Company, error) {
	var c domain.Company
	var created string
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, key, name, created_at FROM companies WHERE key = ? LIMIT 1;`,
		domain.NormalizeCompanyKey(key),
	).Scan(&c.ID, &c.Key, &c.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}
