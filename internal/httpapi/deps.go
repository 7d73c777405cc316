package httpapi

import (
	"context"
	"sync/atomic"

	"jobsync-engine/internal/config"
	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/events"
	"jobsync-engine/internal/ingest"
	"jobsync-engine/internal/poll"
	"jobsync-engine/internal/store"
)

type Store interface {
	Ping(ctx context.Context) error
	CountPostings(ctx context.Context) (int, error)
	Stats(ctx context.Context, recent int) (store.Stats, error)
}

type Pipeline interface {
	Apply(ctx context.Context, postings []domain.Posting) (ingest.Summary, error)
}

type Runner interface {
	Run(ctx context.Context, limit int) (poll.Report, error)
	Status() poll.Status
}

type QueueDepth interface {
	Depth(ctx context.Context) (map[string]int, error)
}

type Deps struct {
	Store    Store
	Pipeline Pipeline
	Runner   Runner
	Queue    QueueDepth // optional
	Hub      *events.Hub

	// Bearer secret for the write and admin routes; empty leaves them open.
	IngestSecret string
	MaxBodyBytes int64

	// Config persistence; the admin routes are not mounted when CfgVal is nil.
	CfgVal      *atomic.Value // stores config.Config
	UserCfgPath string

	// Keyring accounts by secret name, e.g. "ingest" -> "jobsync:ingest".
	SecretAccounts map[string]string
}

func (d Deps) config() (config.Config, bool) {
	if d.CfgVal == nil {
		return config.Config{}, false
	}
	cfg, ok := d.CfgVal.Load().(config.Config)
	return cfg, ok
}
