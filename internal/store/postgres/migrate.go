package postgres

import (
	"context"
	"fmt"
)

// migrations[i] moves the schema from version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS companies (
  id BIGSERIAL PRIMARY KEY,
  key TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS sources (
  id BIGSERIAL PRIMARY KEY,
  kind TEXT NOT NULL,
  company_key TEXT NOT NULL,
  canonical_url TEXT NOT NULL,
  last_fetched_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (kind, company_key)
)`,
		`CREATE TABLE IF NOT EXISTS postings (
  id BIGSERIAL PRIMARY KEY,
  source_kind TEXT NOT NULL,
  company_key TEXT NOT NULL,
  external_id TEXT NOT NULL,
  company_id BIGINT REFERENCES companies(id),
  company_name TEXT,
  title TEXT NOT NULL,
  url TEXT NOT NULL,
  location TEXT,
  description TEXT,
  workplace_type TEXT,
  posted_at TIMESTAMPTZ,
  score INTEGER,
  score_reason TEXT,
  status TEXT NOT NULL DEFAULT 'new',
  is_remote_eu BOOLEAN,
  remote_eu_confidence TEXT,
  remote_eu_reason TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (source_kind, company_key, external_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_postings_status_updated ON postings(status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_postings_posted_at ON postings(posted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_last_fetched ON sources(last_fetched_at NULLS FIRST)`,
	},
	{
		`CREATE TABLE IF NOT EXISTS queue_messages (
  id TEXT PRIMARY KEY,
  queue TEXT NOT NULL,
  body TEXT NOT NULL,
  state TEXT NOT NULL DEFAULT 'ready',
  attempts INTEGER NOT NULL DEFAULT 0,
  visible_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_ready ON queue_messages(queue, state, visible_at)`,
	},
}

// Migrate applies pending migrations, each in its own transaction. An
// advisory lock keeps concurrent starters from racing.
func (d *DB) Migrate(ctx context.Context) error {
	conn, err := d.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	const lockID = 0x6a6f6273 // "jobs"
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	defer func() { _, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID) }()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}
	var version int
	err = conn.QueryRow(ctx, `SELECT COALESCE(max(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return err
	}

	for v := version; v < len(migrations); v++ {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return err
		}
		for _, stmt := range migrations[v] {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("migration %d: %w", v+1, err)
			}
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_version(version) VALUES ($1)`, v+1); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}
