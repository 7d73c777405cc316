// Package postgres is the PostgreSQL repository. It keeps the contract of
// the sqlite store and adds row-level locking for multi-process workers.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobsync-engine/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type DB struct {
	Pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects a pool. viaBouncer switches to the simple protocol, which
// transaction-mode poolers require.
func Open(ctx context.Context, dsn string, maxConns int, viaBouncer bool) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = int32(maxConns)
	if viaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &DB{Pool: pool, now: time.Now}, nil
}

func (d *DB) SetClock(now func() time.Time) { d.now = now }

func (d *DB) stamp() time.Time { return d.now().UTC() }

func (d *DB) Close() error {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error { return d.Pool.Ping(ctx) }

// notFound maps pgx's no-rows error onto the shared sentinel.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
