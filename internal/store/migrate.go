package store

import (
	"database/sql"
	"fmt"
)

// migrations[i] moves the schema from user_version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS companies (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  key TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS sources (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  company_key TEXT NOT NULL,
  canonical_url TEXT NOT NULL,
  last_fetched_at TEXT,
  created_at TEXT NOT NULL,
  UNIQUE(kind, company_key)
);`,
		`CREATE TABLE IF NOT EXISTS postings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source_kind TEXT NOT NULL,
  company_key TEXT NOT NULL,
  external_id TEXT NOT NULL,
  company_id INTEGER REFERENCES companies(id),
  company_name TEXT,
  title TEXT NOT NULL,
  url TEXT NOT NULL,
  location TEXT,
  description TEXT,
  workplace_type TEXT,
  posted_at TEXT,
  score INTEGER,
  score_reason TEXT,
  status TEXT NOT NULL DEFAULT 'new',
  is_remote_eu INTEGER,
  remote_eu_confidence TEXT,
  remote_eu_reason TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  UNIQUE(source_kind, company_key, external_id)
);`,
		`CREATE INDEX IF NOT EXISTS idx_postings_status_updated ON postings(status, updated_at);`,
		`CREATE INDEX IF NOT EXISTS idx_postings_posted_at ON postings(posted_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sources_last_fetched ON sources(last_fetched_at);`,
	},
	{
		`CREATE TABLE IF NOT EXISTS queue_messages (
  id TEXT PRIMARY KEY,
  queue TEXT NOT NULL,
  body TEXT NOT NULL,
  state TEXT NOT NULL DEFAULT 'ready',
  attempts INTEGER NOT NULL DEFAULT 0,
  visible_at TEXT NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_queue_ready ON queue_messages(queue, state, visible_at);`,
	},
}

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= len(migrations) {
		return tx.Commit()
	}

	for i := v; i < len(migrations); i++ {
		for _, stmt := range migrations[i] {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("migrate v%d: %w", i+1, err)
			}
		}
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d;`, len(migrations))); err != nil {
		return err
	}
	return tx.Commit()
}
