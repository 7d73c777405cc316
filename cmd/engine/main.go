package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"jobsync-engine/internal/config"
	"jobsync-engine/internal/events"
	"jobsync-engine/internal/httpapi"
	"jobsync-engine/internal/ingest"
	"jobsync-engine/internal/poll"
	"jobsync-engine/internal/queue"
	"jobsync-engine/internal/recovery"
	"jobsync-engine/internal/scheduler"
	"jobsync-engine/internal/secrets"
)

func main() {
	var (
		dataDir    = flag.String("data-dir", "", "engine data directory (default $JOBSYNC_DATA_DIR or ./data)")
		defaultCfg = flag.String("default-config", filepath.Join("config", "config.yml"), "template copied on first start")
		once       = flag.Bool("once", false, "run one poll cycle and exit")
		setSecret  = flag.String("set-secret", "", "store a secret read from stdin in the OS keyring (ingest|downstream)")
	)
	flag.Parse()

	_ = config.LoadDotEnv(".env")
	zerolog.TimeFieldFormat = time.RFC3339Nano

	dir := *dataDir
	if dir == "" {
		dir = os.Getenv("JOBSYNC_DATA_DIR")
	}
	if dir == "" {
		dir = "data"
	}

	userCfgPath, err := config.EnsureUserConfig(dir, *defaultCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("config bootstrap failed")
	}
	cfg, err := loadConfig(userCfgPath, dir)
	if err != nil {
		log.Fatal().Err(err).Str("path", userCfgPath).Msg("config load failed")
	}
	setupLogging(cfg)

	if *setSecret != "" {
		if err := storeSecret(cfg, *setSecret); err != nil {
			log.Fatal().Err(err).Msg("store secret")
		}
		log.Info().Str("secret", *setSecret).Msg("secret stored in keyring")
		return
	}

	if cfg.App.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.App.SentryDSN}); err != nil {
			log.Warn().Err(err).Msg("sentry init failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create data dir")
	}
	lock := flock.New(filepath.Join(cfg.App.DataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatal().Err(err).Msg("lock data dir")
	}
	if !locked {
		log.Fatal().Str("dir", cfg.App.DataDir).Msg("another engine is already using this data dir")
	}
	defer func() { _ = lock.Unlock() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, userCfgPath, *once); err != nil {
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("engine stopped")
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, userCfgPath string, once bool) error {
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.repo.Close()

	added, err := be.repo.SeedSources(ctx, cfg.SeedSources())
	if err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}
	log.Info().Str("driver", cfg.Database.Driver).Int("sources_added", added).Msg("store ready")

	var transport queueTransport
	switch cfg.Queue.Backend {
	case "memory":
		transport = queue.NewMemoryTransport(cfg.Queue.MaxAttempts)
	default:
		transport = be.queue(cfg.Queue.MaxAttempts, cfg.Queue.Visibility.D())
	}
	producer := queue.NewProducer(transport, cfg.Pipeline.QueueBatchSize)

	trigger, err := buildTrigger(cfg)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	pipeline := ingest.NewPipeline(be.repo, producer, cfg.Pipeline.UpsertConcurrency)
	sweeper := recovery.NewSweeper(be.repo, producer)
	runner := poll.NewRunner(be.repo, buildRegistry(cfg), pipeline, sweeper, trigger, hub, poll.Options{
		MaxSources:    cfg.Pipeline.MaxSourcesPerRun,
		StaleAfter:    cfg.Pipeline.StaleAfter.D(),
		StuckAfter:    cfg.Pipeline.StuckAfter.D(),
		RecoveryLimit: cfg.Pipeline.RecoveryLimit,
		SourceDelay:   cfg.Pipeline.SourceDelay.D(),
	})
	poller := poll.NewPoller(runner)

	if once {
		rep, err := poller.Run(ctx, 0)
		log.Info().Interface("report", rep).Msg("poll cycle finished")
		return err
	}

	consumer := queue.NewConsumer(transport, trigger, queue.ConsumerOptions{
		BatchSize:    cfg.Pipeline.QueueBatchSize,
		RetryDelay:   cfg.Queue.RetryDelay.D(),
		PollInterval: cfg.Queue.PollInterval.D(),
	})
	go consumer.Run(ctx)

	poller.Start(ctx, cfg.Pipeline.Interval.D())
	go scheduler.Every(ctx, 24*time.Hour, "retention", func(ctx context.Context) error {
		n, err := be.repo.MarkStale(ctx, cfg.Pipeline.Retention.D(), cfg.Pipeline.StaleGrace.D())
		if err == nil && n > 0 {
			log.Info().Str("component", "retention").Int64("postings", n).Msg("marked stale")
		}
		return err
	})

	ingestSecret, err := secrets.Resolve(cfg.Ingest.Secret, cfg.Ingest.KeyringAccount)
	if err != nil {
		log.Warn().Err(err).Msg("ingest secret lookup failed; ingest routes are open")
	}
	if ingestSecret == "" {
		log.Warn().Msg("no ingest secret configured; write routes accept any caller")
	}

	var cfgVal atomic.Value
	cfgVal.Store(cfg)

	handler := httpapi.NewHandler(httpapi.Deps{
		Store:        be.repo,
		Pipeline:     pipeline,
		Runner:       poller,
		Queue:        transport,
		Hub:          hub,
		IngestSecret: ingestSecret,
		CfgVal:       &cfgVal,
		UserCfgPath:  userCfgPath,
		SecretAccounts: map[string]string{
			"ingest":     cfg.Ingest.KeyringAccount,
			"downstream": cfg.Downstream.KeyringAccount,
		},
	})
	return serve(ctx, cfg.App.Addr, handler)
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info().Str("addr", "http://"+ln.Addr().String()).Msg("engine listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func storeSecret(cfg config.Config, name string) error {
	accounts := map[string]string{
		"ingest":     cfg.Ingest.KeyringAccount,
		"downstream": cfg.Downstream.KeyringAccount,
	}
	account, ok := accounts[name]
	if !ok {
		return fmt.Errorf("unknown secret %q", name)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read secret from stdin: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return errors.New("empty secret")
	}
	return secrets.Set(account, line)
}
