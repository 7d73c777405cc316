package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"jobsync-engine/internal/domain"
)

// Duration reads and writes Go duration strings ("6h", "90s") in YAML.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

type CompanyList struct {
	Enabled   bool     `yaml:"enabled"`
	Companies []string `yaml:"companies"`
}

type Config struct {
	App struct {
		Addr      string `yaml:"addr"`
		DataDir   string `yaml:"data_dir"`
		LogLevel  string `yaml:"log_level"`
		Pretty    bool   `yaml:"pretty"`
		SentryDSN string `yaml:"sentry_dsn"`
	} `yaml:"app"`

	Database struct {
		Driver   string `yaml:"driver"` // sqlite | postgres
		Path     string `yaml:"path"`
		DSN      string `yaml:"dsn"`
		MaxConns int    `yaml:"max_conns"`

		// Set when the DSN points at a transaction-mode pooler.
		SimpleProtocol bool `yaml:"simple_protocol"`
	} `yaml:"database"`

	Pipeline struct {
		Interval          Duration `yaml:"interval"`
		StaleAfter        Duration `yaml:"stale_after"`
		StuckAfter        Duration `yaml:"stuck_after"`
		MaxSourcesPerRun  int      `yaml:"max_sources_per_run"`
		RecoveryLimit     int      `yaml:"recovery_limit"`
		QueueBatchSize    int      `yaml:"queue_batch_size"`
		UpsertConcurrency int      `yaml:"upsert_concurrency"`
		SourceDelay       Duration `yaml:"source_delay"`
		Retention         Duration `yaml:"retention"`
		StaleGrace        Duration `yaml:"stale_grace"`
	} `yaml:"pipeline"`

	Fetch struct {
		MaxAttempts int      `yaml:"max_attempts"`
		Timeout     Duration `yaml:"timeout"`
		RPS         float64  `yaml:"rps"`
		Burst       int      `yaml:"burst"`
		UserAgent   string   `yaml:"user_agent"`
	} `yaml:"fetch"`

	Queue struct {
		Backend      string   `yaml:"backend"` // memory | store
		MaxAttempts  int      `yaml:"max_attempts"`
		RetryDelay   Duration `yaml:"retry_delay"`
		PollInterval Duration `yaml:"poll_interval"`
		Visibility   Duration `yaml:"visibility"`
	} `yaml:"queue"`

	Ingest struct {
		Secret         string `yaml:"secret,omitempty"`
		KeyringAccount string `yaml:"keyring_account"`
	} `yaml:"ingest"`

	Downstream struct {
		URL            string   `yaml:"url"`
		Secret         string   `yaml:"secret,omitempty"`
		KeyringAccount string   `yaml:"keyring_account"`
		Timeout        Duration `yaml:"timeout"`
	} `yaml:"downstream"`

	Sources struct {
		Greenhouse CompanyList `yaml:"greenhouse"`
		Lever      CompanyList `yaml:"lever"`
		Ashby      CompanyList `yaml:"ashby"`
		Workable   CompanyList `yaml:"workable"`
	} `yaml:"sources"`
}

func Default() Config {
	var c Config
	c.App.Addr = "127.0.0.1:38471"
	c.App.DataDir = "data"
	c.App.LogLevel = "info"

	c.Database.Driver = "sqlite"
	c.Database.MaxConns = 8

	c.Pipeline.Interval = Duration(15 * time.Minute)
	c.Pipeline.StaleAfter = Duration(6 * time.Hour)
	c.Pipeline.StuckAfter = Duration(6 * time.Hour)
	c.Pipeline.MaxSourcesPerRun = 10
	c.Pipeline.RecoveryLimit = 200
	c.Pipeline.QueueBatchSize = 100
	c.Pipeline.UpsertConcurrency = 4
	c.Pipeline.SourceDelay = Duration(time.Second)
	c.Pipeline.Retention = Duration(30 * 24 * time.Hour)
	c.Pipeline.StaleGrace = Duration(7 * 24 * time.Hour)

	c.Fetch.MaxAttempts = 3
	c.Fetch.Timeout = Duration(20 * time.Second)
	c.Fetch.RPS = 1
	c.Fetch.Burst = 2
	c.Fetch.UserAgent = "jobsync/1.0 (+ingest)"

	c.Queue.Backend = "store"
	c.Queue.MaxAttempts = 5
	c.Queue.RetryDelay = Duration(30 * time.Second)
	c.Queue.PollInterval = Duration(2 * time.Second)
	c.Queue.Visibility = Duration(2 * time.Minute)

	c.Ingest.KeyringAccount = "jobsync:ingest"
	c.Downstream.KeyringAccount = "jobsync:downstream"
	c.Downstream.Timeout = Duration(30 * time.Second)

	c.Sources.Greenhouse.Enabled = true
	c.Sources.Lever.Enabled = true
	c.Sources.Ashby.Enabled = true
	c.Sources.Workable.Enabled = true
	return c
}

// Load layers defaults, the YAML file at path (a missing file is fine) and
// JOBSYNC_* environment overrides.
func Load(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile is Load without the environment: what SaveAtomic would write back.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, err
		}
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files that exist. Variables already in
// the environment win.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func applyEnv(c *Config) error {
	str := map[string]*string{
		"JOBSYNC_ADDR":              &c.App.Addr,
		"JOBSYNC_DATA_DIR":          &c.App.DataDir,
		"JOBSYNC_LOG_LEVEL":         &c.App.LogLevel,
		"JOBSYNC_DB_DRIVER":         &c.Database.Driver,
		"JOBSYNC_DB_PATH":           &c.Database.Path,
		"JOBSYNC_DATABASE_URL":      &c.Database.DSN,
		"JOBSYNC_INGEST_SECRET":     &c.Ingest.Secret,
		"JOBSYNC_DOWNSTREAM_URL":    &c.Downstream.URL,
		"JOBSYNC_DOWNSTREAM_SECRET": &c.Downstream.Secret,
		"JOBSYNC_SENTRY_DSN":        &c.App.SentryDSN,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(k); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	durs := map[string]*Duration{
		"JOBSYNC_STALE_AFTER": &c.Pipeline.StaleAfter,
		"JOBSYNC_STUCK_AFTER": &c.Pipeline.StuckAfter,
	}
	for k, dst := range durs {
		if v, ok := os.LookupEnv(k); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			*dst = Duration(d)
		}
	}

	ints := map[string]*int{
		"JOBSYNC_MAX_SOURCES_PER_RUN": &c.Pipeline.MaxSourcesPerRun,
		"JOBSYNC_QUEUE_BATCH_SIZE":    &c.Pipeline.QueueBatchSize,
	}
	for k, dst := range ints {
		if v, ok := os.LookupEnv(k); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			*dst = n
		}
	}
	return nil
}

// DBPath is the sqlite file, defaulting to jobsync.db in the data dir.
func (c Config) DBPath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.App.DataDir, "jobsync.db")
}

// SeedSources lists the enabled company keys per vendor.
func (c Config) SeedSources() map[domain.SourceKind][]string {
	out := make(map[domain.SourceKind][]string)
	lists := map[domain.SourceKind]CompanyList{
		domain.KindGreenhouse: c.Sources.Greenhouse,
		domain.KindLever:      c.Sources.Lever,
		domain.KindAshby:      c.Sources.Ashby,
		domain.KindWorkable:   c.Sources.Workable,
	}
	for kind, l := range lists {
		if l.Enabled && len(l.Companies) > 0 {
			out[kind] = l.Companies
		}
	}
	return out
}
