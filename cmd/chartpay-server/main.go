package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/chartpay/pkg/api"
	"github.com/platinummonkey/chartpay/pkg/async"
	"github.com/platinummonkey/chartpay/pkg/audit"
	"github.com/platinummonkey/chartpay/pkg/billing"
	"github.com/platinummonkey/chartpay/pkg/config"
	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/plans"
	"github.com/platinummonkey/chartpay/pkg/webhooks"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", "", "Optional .env file to load before the environment")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.LoadConfig(files...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chartpay-server: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "chartpay-server").
		WithField("version", version)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	catalog, err := loadCatalog(ctx, cfg.Server.PlansFile, logger)
	if err != nil {
		return err
	}

	health := observability.NewHealthChecker(version)
	opts := billing.Options{
		Catalog:            catalog,
		Bank:               cfg.Server.Bank,
		RequestTTL:         cfg.Server.RequestTTL,
		SubscriptionPeriod: cfg.Server.SubscriptionPeriod,
		Logger:             logger,
		Metrics:            metrics,
	}

	var (
		svc billing.Service
		db  *sql.DB
	)
	if cfg.Server.PostgresURL != "" {
		db, err = billing.OpenPostgres(ctx, cfg.Server.Postgres())
		if err != nil {
			return err
		}
		pg, err := billing.NewPostgresService(db, opts)
		if err != nil {
			db.Close()
			return err
		}
		if err := pg.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
		health.AddDatabase("postgres", db)
		svc = pg
		logger.Info("billing backed by postgres")
	} else {
		mem, err := billing.NewMemoryService(opts)
		if err != nil {
			return err
		}
		svc = mem
		logger.Warn("CHARTPAY_POSTGRES_URL not set, billing state is in memory")
	}

	var (
		publishers []billing.Publisher
		trail      *audit.FileLogger
		dispatcher *webhooks.Dispatcher
		apiCfg     = api.Config{
			Catalog:     catalog,
			Tokens:      api.NewTokenStore(0, cfg.Server.TokenTTL),
			AdminEmails: cfg.Server.AdminEmails,
			Health:      health,
			Registry:    registry,
			Metrics:     metrics,
			Logger:      logger,
		}
	)
	if cfg.Server.AuditDir != "" {
		trail, err = audit.NewFileLogger(audit.FileLoggerConfig{Dir: cfg.Server.AuditDir}, logger)
		if err != nil {
			return err
		}
		publishers = append(publishers, trail)
		apiCfg.Audit = trail
	}
	if endpoints := webhookEndpoints(cfg.Server); len(endpoints) > 0 {
		dispatcher, err = webhooks.NewDispatcher(webhooks.Config{Endpoints: endpoints}, logger, metrics)
		if err != nil {
			return err
		}
		publishers = append(publishers, dispatcher)
		apiCfg.Deliveries = dispatcher.Deliveries()
	}
	if len(publishers) > 0 {
		svc = billing.WithEvents(svc, billing.Publishers(publishers...), nil, logger)
	}
	apiCfg.Service = svc

	sweeper, err := billing.NewSweeper(svc, cfg.Server.SweepSchedule, logger)
	if err != nil {
		return err
	}

	handler, err := api.NewServer(apiCfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("tracing", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, tp, logger)
	})
	if db != nil {
		shutdown.Register("postgres", func(ctx context.Context) error {
			return db.Close()
		})
	}
	shutdown.Register("expiry sweeper", sweeper.Stop)
	if dispatcher != nil {
		shutdown.Register("webhooks", dispatcher.Close)
	}
	if trail != nil {
		shutdown.Register("audit trail", func(ctx context.Context) error {
			return trail.Close()
		})
	}
	shutdown.Register("background tasks", func(ctx context.Context) error {
		cancel()
		return nil
	})

	sweeper.Start()

	serveErr := make(chan error, 1)
	async.SafeGo(ctx, logger, 0, "http server", func(ctx context.Context) error {
		logger.WithField("addr", server.Addr).Info("chartpay server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
			return err
		}
		return nil
	})

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		return err
	}
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// webhookEndpoints builds the signed endpoints and the optional Slack
// channel, which only hears about claims and review decisions.
func webhookEndpoints(cfg config.ServerConfig) []webhooks.Endpoint {
	var out []webhooks.Endpoint
	for _, u := range cfg.WebhookURLs {
		out = append(out, webhooks.Endpoint{URL: u, Secret: cfg.WebhookSecret})
	}
	if cfg.SlackWebhookURL != "" {
		out = append(out, webhooks.Endpoint{
			URL:    cfg.SlackWebhookURL,
			Format: webhooks.FormatSlack,
			Events: []billing.EventType{
				billing.EventRequestClaimed,
				billing.EventRequestApproved,
				billing.EventRequestRejected,
			},
		})
	}
	return out
}

// loadCatalog reads the plan file and keeps watching it, or falls back to
// the built-in plans.
func loadCatalog(ctx context.Context, path string, logger *observability.Logger) (*plans.Catalog, error) {
	if path == "" {
		return plans.NewStaticCatalog(plans.Defaults())
	}
	catalog := plans.NewCatalog(plans.FileFetcher{Path: path}, logger)
	if err := catalog.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load plans from %s: %w", path, err)
	}
	if err := plans.Watch(ctx, path, catalog, logger); err != nil {
		logger.WithError(err).Warn("plan file hot reload disabled")
	}
	return catalog, nil
}
