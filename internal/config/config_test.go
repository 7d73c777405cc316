package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jobsync-engine/internal/domain"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.StaleAfter.D() != 6*time.Hour || cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected defaults %+v", cfg.Pipeline)
	}
	if _, res := NormalizeAndValidate(cfg); !res.OK() {
		t.Fatalf("defaults invalid: %v", res.Errors)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, `
app:
  addr: ":9000"
pipeline:
  stale_after: 2h
  max_sources_per_run: 3
sources:
  lever:
    enabled: true
    companies: [acme, " Acme ", globex]
`)
	t.Setenv("JOBSYNC_STUCK_AFTER", "90m")
	t.Setenv("JOBSYNC_MAX_SOURCES_PER_RUN", "7")
	t.Setenv("JOBSYNC_DOWNSTREAM_URL", "https://classifier.internal/run")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.Addr != ":9000" || cfg.Pipeline.StaleAfter.D() != 2*time.Hour {
		t.Errorf("file values not applied: %+v", cfg.App)
	}
	if cfg.Pipeline.StuckAfter.D() != 90*time.Minute || cfg.Pipeline.MaxSourcesPerRun != 7 {
		t.Errorf("env overrides not applied: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.QueueBatchSize != 100 {
		t.Errorf("default lost: %d", cfg.Pipeline.QueueBatchSize)
	}

	norm, res := NormalizeAndValidate(cfg)
	if !res.OK() {
		t.Fatalf("errors: %v", res.Errors)
	}
	if got := norm.SeedSources()[domain.KindLever]; len(got) != 2 || got[0] != "acme" {
		t.Fatalf("lever companies = %v", got)
	}
}

func TestLoadFileIgnoresEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, "ingest:\n  secret: from-file\n")
	t.Setenv("JOBSYNC_INGEST_SECRET", "from-env")
	t.Setenv("JOBSYNC_DATABASE_URL", "postgres://u:p@db/jobsync")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.Secret != "from-file" || cfg.Database.DSN != "" {
		t.Fatalf("env leaked into file config: secret=%q dsn=%q", cfg.Ingest.Secret, cfg.Database.DSN)
	}
	if cfg.Pipeline.StaleGrace.D() != 7*24*time.Hour {
		t.Fatalf("stale grace default = %s", cfg.Pipeline.StaleGrace.D())
	}

	full, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if full.Ingest.Secret != "from-env" {
		t.Fatalf("Load secret = %q", full.Ingest.Secret)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("JOBSYNC_STALE_AFTER", "soon")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "JOBSYNC_STALE_AFTER") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, "pipeline:\n  interval: often\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "JOBSYNC_LOG_LEVEL=debug\nJOBSYNC_ADDR=:7000\n")

	t.Setenv("JOBSYNC_LOG_LEVEL", "")
	os.Unsetenv("JOBSYNC_LOG_LEVEL")
	t.Setenv("JOBSYNC_ADDR", ":1234")

	if err := LoadDotEnv(filepath.Join(dir, ".env"), filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("JOBSYNC_LOG_LEVEL") != "debug" {
		t.Error(".env value not loaded")
	}
	if os.Getenv("JOBSYNC_ADDR") != ":1234" {
		t.Error("existing environment was overridden")
	}
}

func TestNormalizeAndValidateReportsProblems(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	cfg.Queue.Backend = "kafka"
	cfg.Pipeline.StuckAfter = 0
	cfg.App.LogLevel = "loud"
	cfg.Downstream.URL = "ftp://x"

	_, res := NormalizeAndValidate(cfg)
	joined := strings.Join(res.Errors, "\n")
	for _, want := range []string{"database.driver", "queue.backend", "pipeline.stuck_after", "app.log_level", "downstream.url"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing error for %s in:\n%s", want, joined)
		}
	}

	cfg = Default()
	cfg.Database.Driver = "postgres"
	if _, res := NormalizeAndValidate(cfg); res.OK() {
		t.Error("postgres without dsn accepted")
	}
}

func TestSaveAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.yml")
	cfg := Default()
	cfg.Sources.Ashby.Companies = []string{"linear"}
	cfg.Pipeline.Retention = Duration(72 * time.Hour)

	if err := SaveAtomic(path, cfg); err != nil {
		t.Fatal(err)
	}
	if err := SaveAtomic(path, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("backup missing: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Pipeline.Retention.D() != 72*time.Hour || len(got.Sources.Ashby.Companies) != 1 {
		t.Fatalf("round trip lost data: %+v", got.Pipeline)
	}

	bad := Default()
	bad.Database.Driver = ""
	if err := SaveAtomic(path, bad); err == nil {
		t.Fatal("invalid config saved")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	dir := t.TempDir()
	path, err := EnsureUserConfig(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.DataDir != dir {
		t.Fatalf("data dir = %q", cfg.App.DataDir)
	}

	tpl := filepath.Join(t.TempDir(), "default.yml")
	writeFile(t, tpl, "app:\n  addr: \":1\"\n")
	other := t.TempDir()
	path, err = EnsureUserConfig(other, tpl)
	if err != nil {
		t.Fatal(err)
	}
	if cfg, _ := Load(path); cfg.App.Addr != ":1" {
		t.Fatalf("template not copied, addr = %q", cfg.App.Addr)
	}
}

func TestOverlayCompanies(t *testing.T) {
	cfg := Default()
	cfg.Sources.Greenhouse.Companies = []string{"keep"}
	cfg.Sources.Workable.Companies = []string{"old"}

	path := filepath.Join(t.TempDir(), "companies.yml")
	writeFile(t, path, "sources:\n  workable:\n    companies: [new-co]\n")
	if err := OverlayCompanies(&cfg, path); err != nil {
		t.Fatal(err)
	}
	if cfg.Sources.Workable.Companies[0] != "new-co" || cfg.Sources.Greenhouse.Companies[0] != "keep" {
		t.Fatalf("overlay result %+v", cfg.Sources)
	}
	if err := OverlayCompanies(&cfg, filepath.Join(t.TempDir(), "missing.yml")); err != nil {
		t.Fatal(err)
	}
}
