package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/report-vault/internal/api"
	"github.com/report-vault/internal/archive"
	"github.com/report-vault/internal/autosave"
	"github.com/report-vault/internal/config"
	"github.com/report-vault/internal/diff"
	"github.com/report-vault/internal/kv"
	"github.com/report-vault/internal/logger"
	"github.com/report-vault/internal/maintenance"
	"github.com/report-vault/internal/metrics"
	"github.com/report-vault/internal/sanitize"
	"github.com/report-vault/internal/versions"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file (empty for defaults)")
	flag.Parse()

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logs := logger.NewLogger(logger.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	log := logs.Zerolog()

	// Initialize key-value backend
	backend, err := openBackend(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to initialize storage backend")
	}
	defer backend.Close()

	log.Info().Str("backend", cfg.Storage.Backend).Str("namespace", cfg.Storage.Namespace).Msg("storage initialized")

	// Initialize archive sink
	sink, err := openArchive(cfg.Archive)
	if err != nil {
		log.Fatal().Err(err).Str("archive", cfg.Archive.Backend).Msg("failed to initialize archive")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	gate := sanitize.New(nil)
	engine := diff.NewEngine()

	store := versions.New(backend, versions.Options{
		Namespace:     cfg.Storage.Namespace,
		CapacityBytes: cfg.Storage.CapacityBytes,
		WarnPercent:   cfg.Storage.WarnPercent,
		AutoEvict:     *cfg.Storage.AutoEvict,
		KeepAutoSaves: cfg.Storage.KeepAutoSaves,
		SkipUnchanged: *cfg.Storage.SkipUnchanged,
		Gate:          gate,
		Diff:          engine,
		Archiver:      sink,
		Metrics:       m,
		Logger:        logs.Component("versions"),
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := autosave.NewManager(ctx, store, autosave.Options{
		Debounce:   cfg.Autosave.Debounce,
		Interval:   cfg.Autosave.Interval,
		Resolution: cfg.Autosave.Resolution,
		Author:     versions.Author{UserID: "autosave", DisplayName: "Auto-save", Role: "system"},
		Metrics:    m,
		Logger:     logs.Component("autosave"),
	})

	// Start maintenance in background
	if cfg.Maintenance.Schedule != "off" {
		sched := maintenance.NewScheduler(store, cfg.Maintenance.Schedule, logs.Component("maintenance"))
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start maintenance")
		}
	}

	// Pick up quota changes without a restart
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, 500*time.Millisecond, logs.Component("config"), func(next *config.Config) {
				store.SetQuota(next.Storage.CapacityBytes, next.Storage.WarnPercent)
				log.Info().
					Int64("capacity_bytes", next.Storage.CapacityBytes).
					Float64("warn_percent", next.Storage.WarnPercent).
					Msg("storage quota updated")
			})
			if err != nil {
				log.Warn().Err(err).Msg("configuration hot reload disabled")
			}
		}()
	}

	// Initialize and start API server
	server := api.NewServer(cfg.Server, api.Deps{
		Store:    store,
		Autosave: manager,
		Gate:     gate,
		Diff:     engine,
		Gatherer: reg,
		Logger:   logs.Component("api"),
	})

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logs.LogServerShutdown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during server shutdown")
		}
		// pending edits are saved, not dropped
		if err := manager.CloseAll(shutdownCtx, true); err != nil {
			log.Error().Err(err).Msg("failed to flush auto-saves")
		}
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logs.LogServerStart(addr, cfg.Storage.Backend)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}

	<-ctx.Done()
	log.Info().Msg("report-vault stopped")
}

func openBackend(cfg config.StorageConfig) (kv.Backend, error) {
	switch cfg.Backend {
	case "memory":
		return kv.NewMemoryBackend(), nil
	case "sqlite":
		return kv.NewSQLiteBackend(cfg.Path)
	case "redis":
		return kv.NewRedisBackend(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func openArchive(cfg config.ArchiveConfig) (versions.Archiver, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "file":
		return archive.NewFileSink(cfg.Path)
	case "azure":
		return archive.NewAzureSink(cfg.Azure)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
