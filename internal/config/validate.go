package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jobsync-engine/internal/domain"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

func (v Validation) Error() string {
	return "config validation failed:\n- " + strings.Join(v.Errors, "\n- ")
}

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong
// with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	keys := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = domain.NormalizeCompanyKey(x)
			if x == "" || seen[x] {
				continue
			}
			seen[x] = true
			ys = append(ys, x)
		}
		return ys
	}
	out.Sources.Greenhouse.Companies = keys(out.Sources.Greenhouse.Companies)
	out.Sources.Lever.Companies = keys(out.Sources.Lever.Companies)
	out.Sources.Ashby.Companies = keys(out.Sources.Ashby.Companies)
	out.Sources.Workable.Companies = keys(out.Sources.Workable.Companies)

	out.App.LogLevel = strings.ToLower(strings.TrimSpace(out.App.LogLevel))
	out.Database.Driver = strings.ToLower(strings.TrimSpace(out.Database.Driver))
	out.Queue.Backend = strings.ToLower(strings.TrimSpace(out.Queue.Backend))

	if strings.TrimSpace(out.App.Addr) == "" {
		res.addErr("app.addr is required")
	}
	if out.App.LogLevel != "" {
		if _, err := zerolog.ParseLevel(out.App.LogLevel); err != nil {
			res.addErr("app.log_level %q is not a log level", out.App.LogLevel)
		}
	}

	switch out.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(out.App.DataDir) == "" && out.Database.Path == "" {
			res.addErr("database.path or app.data_dir is required for sqlite")
		}
	case "postgres":
		if strings.TrimSpace(out.Database.DSN) == "" {
			res.addErr("database.dsn is required when database.driver=postgres")
		}
		if out.Database.MaxConns <= 0 {
			res.addWarn("database.max_conns is %d; the pool default will be used", out.Database.MaxConns)
		}
	default:
		res.addErr("database.driver must be sqlite or postgres, got %q", out.Database.Driver)
	}

	positive := map[string]Duration{
		"pipeline.interval":    out.Pipeline.Interval,
		"pipeline.stale_after": out.Pipeline.StaleAfter,
		"pipeline.stuck_after": out.Pipeline.StuckAfter,
		"pipeline.retention":   out.Pipeline.Retention,
		"pipeline.stale_grace": out.Pipeline.StaleGrace,
		"fetch.timeout":        out.Fetch.Timeout,
		"queue.poll_interval":  out.Queue.PollInterval,
		"queue.visibility":     out.Queue.Visibility,
	}
	for name, d := range positive {
		if d <= 0 {
			res.addErr("%s must be > 0", name)
		}
	}
	if out.Pipeline.Interval > 0 && out.Pipeline.Interval.D() < time.Minute {
		res.addWarn("pipeline.interval is very low (%s) and may hit vendor rate limits.", out.Pipeline.Interval.D())
	}
	if out.Pipeline.SourceDelay < 0 {
		res.addErr("pipeline.source_delay cannot be negative")
	}

	if out.Pipeline.MaxSourcesPerRun <= 0 {
		res.addErr("pipeline.max_sources_per_run must be > 0")
	}
	if out.Pipeline.RecoveryLimit <= 0 {
		res.addErr("pipeline.recovery_limit must be > 0")
	}
	if out.Pipeline.UpsertConcurrency <= 0 {
		res.addErr("pipeline.upsert_concurrency must be > 0")
	}
	if n := out.Pipeline.QueueBatchSize; n <= 0 || n > 100 {
		res.addWarn("pipeline.queue_batch_size %d is outside 1..100 and will be clamped", n)
	}

	if out.Fetch.MaxAttempts < 1 {
		res.addErr("fetch.max_attempts must be >= 1")
	}
	if out.Fetch.RPS < 0 {
		res.addErr("fetch.rps cannot be negative")
	}

	switch out.Queue.Backend {
	case "memory":
		res.addWarn("queue.backend=memory loses queued messages on restart; the recovery sweep will re-enqueue them")
	case "store":
	default:
		res.addErr("queue.backend must be memory or store, got %q", out.Queue.Backend)
	}
	if out.Queue.MaxAttempts < 1 {
		res.addErr("queue.max_attempts must be >= 1")
	}

	if u := strings.TrimSpace(out.Downstream.URL); u == "" {
		res.addWarn("downstream.url is empty; processing triggers will only be logged")
	} else if pu, err := url.Parse(u); err != nil || (pu.Scheme != "http" && pu.Scheme != "https") || pu.Host == "" {
		res.addErr("downstream.url %q must be an absolute http(s) URL", u)
	}

	if len(out.SeedSources()) == 0 {
		res.addWarn("no companies configured; only the ingestion endpoint will add postings")
	}
	return out, res
}
