package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/pixelgate/pixelgate/internal/adapter/capi"
	pghttp "github.com/pixelgate/pixelgate/internal/adapter/http"
	"github.com/pixelgate/pixelgate/internal/adapter/memory"
	pgnats "github.com/pixelgate/pixelgate/internal/adapter/nats"
	pgotel "github.com/pixelgate/pixelgate/internal/adapter/otel"
	"github.com/pixelgate/pixelgate/internal/adapter/postgres"
	"github.com/pixelgate/pixelgate/internal/adapter/ristretto"
	"github.com/pixelgate/pixelgate/internal/adapter/sqlite"
	"github.com/pixelgate/pixelgate/internal/config"
	"github.com/pixelgate/pixelgate/internal/logger"
	"github.com/pixelgate/pixelgate/internal/middleware"
	"github.com/pixelgate/pixelgate/internal/port/configstore"
	"github.com/pixelgate/pixelgate/internal/port/eventlog"
	"github.com/pixelgate/pixelgate/internal/resilience"
	"github.com/pixelgate/pixelgate/internal/service"
)

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "migrate":
		err = runMigrate(args)
	case "admin":
		err = runAdmin(args)
	case "send-test-event":
		err = runSendTestEvent(args)
	case "help", "--help", "-h":
		printHelp()
	default:
		printHelp()
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: pixelgate <command> [options]

Commands:
  serve            Run the gateway (default)
  migrate          Apply database migrations and exit
  admin            Tenant and credential administration
  send-test-event  Send one event through the client transport chain
  help             Show this help message
`)
}

// openStore builds the configured persistence backend. All drivers
// implement both the config store and the event log.
func openStore(ctx context.Context, cfg *config.Config) (configstore.Store, eventlog.Store, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrations: %w", err)
		}
		store := postgres.NewStore(pool)
		slog.Info("postgres connected")
		return store, store, pool.Close, nil

	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		slog.Info("sqlite opened", "path", cfg.Store.Path)
		return store, store, func() { _ = store.Close() }, nil

	case "memory":
		store := memory.NewStore()
		slog.Warn("using in-memory store, data does not survive restarts")
		return store, store, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

func runServe(args []string) error {
	configPath := config.DefaultConfigFile
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, levelVar := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// Config hot-reload: webhook secret rotation and log level changes
	// take effect without a restart.
	watcher := config.NewWatcher(configPath, cfg)
	watcher.OnReload(func(c *config.Config) {
		levelVar.Set(logger.ParseLevel(c.Logging.Level))
	})
	if _, err := os.Stat(configPath); err == nil {
		stopWatch, err := watcher.Start()
		if err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		defer stopWatch()
	}

	shutdownTracing, err := pgotel.InitTracer(ctx, cfg.Logging.Service, cfg.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// --- Infrastructure ---

	cfgStore, logStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	var pub service.OutcomePublisher
	if cfg.NATS.URL != "" {
		queue, err := pgnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
		pub = queue
	}

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	client := capi.New(cfg.Conversions.BaseURL, cfg.Conversions.APIVersion, cfg.Conversions.Timeout, breaker)

	// --- Services ---

	tenants := service.NewTenantService(cfgStore, cache, cfg.Cache.TTL)
	dispatcher := service.NewDispatcher(tenants, client, logStore, pub)
	ingest := service.NewIngestService(dispatcher)
	webhooks := service.NewWebhookService(tenants, ingest)

	// --- HTTP ---

	handlers, err := pghttp.NewHandlers(ingest, tenants, webhooks, logStore, cfg.Server.PublicURL)
	if err != nil {
		return fmt.Errorf("handlers: %w", err)
	}

	r := chi.NewRouter()
	r.Use(pghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(pghttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(pgotel.HTTPMiddleware(cfg.Logging.Service))

	pghttp.MountRoutes(r, handlers, watcher.WebhookSecret, cfg.Admin.Token)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMigrate(args []string) error {
	configPath := config.DefaultConfigFile
	if len(args) > 0 {
		configPath = args[0]
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Store.Driver != "postgres" {
		return fmt.Errorf("migrate applies to the postgres driver, configured driver is %s", cfg.Store.Driver)
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "migrations applied, schema version %d\n", version)
	return nil
}
