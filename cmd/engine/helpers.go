package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"jobsync-engine/internal/config"
	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/ingest"
	"jobsync-engine/internal/ingest/ats"
	"jobsync-engine/internal/ingest/ats/ashby"
	"jobsync-engine/internal/ingest/ats/greenhouse"
	"jobsync-engine/internal/ingest/ats/lever"
	"jobsync-engine/internal/ingest/ats/workable"
	"jobsync-engine/internal/poll"
	"jobsync-engine/internal/queue"
	"jobsync-engine/internal/recovery"
	"jobsync-engine/internal/secrets"
	"jobsync-engine/internal/store"
	"jobsync-engine/internal/store/postgres"
)

// repository is what the engine needs from either database.
type repository interface {
	ingest.Store
	poll.SourceStore
	recovery.Claimer
	Ping(ctx context.Context) error
	CountPostings(ctx context.Context) (int, error)
	Stats(ctx context.Context, recent int) (store.Stats, error)
	SeedSources(ctx context.Context, seeds map[domain.SourceKind][]string) (int, error)
	MarkStale(ctx context.Context, olderThan, grace time.Duration) (int64, error)
	Close() error
}

type queueTransport interface {
	queue.Transport
	Depth(ctx context.Context) (map[string]int, error)
}

type backend struct {
	repo  repository
	queue func(maxAttempts int, visibility time.Duration) queueTransport
}

const queueName = "postings"

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns, cfg.Database.SimpleProtocol)
		if err != nil {
			return backend{}, fmt.Errorf("postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return backend{}, fmt.Errorf("postgres migrate: %w", err)
		}
		return backend{
			repo: db,
			queue: func(max int, vis time.Duration) queueTransport {
				return db.Queue(queueName, max, vis)
			},
		}, nil
	default:
		path := cfg.DBPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return backend{}, err
		}
		db, err := store.Open(path)
		if err != nil {
			return backend{}, fmt.Errorf("sqlite %s: %w", path, err)
		}
		if err := store.Migrate(db.Pool); err != nil {
			_ = db.Close()
			return backend{}, fmt.Errorf("sqlite migrate: %w", err)
		}
		return backend{
			repo: db,
			queue: func(max int, vis time.Duration) queueTransport {
				return db.Queue(queueName, max, vis)
			},
		}, nil
	}
}

func buildRegistry(cfg config.Config) *ats.Registry {
	client := ats.NewClient(
		ats.WithLimiter(ats.NewHostLimiter(cfg.Fetch.RPS, cfg.Fetch.Burst)),
		ats.WithMaxAttempts(cfg.Fetch.MaxAttempts),
		ats.WithUserAgent(cfg.Fetch.UserAgent),
		ats.WithHTTPClient(&http.Client{Timeout: cfg.Fetch.Timeout.D()}),
	)
	return ats.NewRegistry(
		greenhouse.New(client),
		lever.New(client),
		ashby.New(client),
		workable.New(client),
	)
}

func buildTrigger(cfg config.Config) (queue.Trigger, error) {
	if cfg.Downstream.URL == "" {
		log.Warn().Msg("no downstream url configured; triggers are only logged")
		return queue.LogTrigger{}, nil
	}
	secret, err := secrets.Resolve(cfg.Downstream.Secret, cfg.Downstream.KeyringAccount)
	if err != nil {
		return nil, fmt.Errorf("downstream secret: %w", err)
	}
	return queue.NewWebhookTrigger(cfg.Downstream.URL, secret, cfg.Downstream.Timeout.D()), nil
}

func loadConfig(path, dataDir string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	// The directory holding config.yml is authoritative.
	cfg.App.DataDir = dataDir
	if err := config.OverlayCompanies(&cfg, filepath.Join(dataDir, "companies.yml")); err != nil {
		return cfg, err
	}

	cfg, v := config.NormalizeAndValidate(cfg)
	for _, w := range v.Warnings {
		log.Warn().Str("path", path).Msg(w)
	}
	if !v.OK() {
		return cfg, v
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) {
	lvl, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if cfg.App.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
