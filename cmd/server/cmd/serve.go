package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Togather-Foundation/historia/internal/api"
	"github.com/Togather-Foundation/historia/internal/config"
	"github.com/Togather-Foundation/historia/internal/email"
	"github.com/Togather-Foundation/historia/internal/jobs"
	"github.com/Togather-Foundation/historia/internal/metrics"
	"github.com/Togather-Foundation/historia/internal/storage/postgres"
	"github.com/Togather-Foundation/historia/internal/telemetry"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	host string
	port int
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Historia HTTP server and background workers",
		Long: `Start the review API, the in-process job queue and, when enabled,
the River workers that run scheduled imports and staging cleanup.

The server will:
- Load configuration from environment variables, .env and --config
- Serve the admin review and import API plus /healthz, /readyz and /metrics
- Run async imports one at a time on a bounded in-process queue
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  historia serve

  # Start on a specific host and port
  historia serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  historia serve --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8080)")
	return cmd
}

func runServer(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("starting historia server")

	metrics.Init(Version, GitCommit, BuildDate)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := newApp(startCtx, cfg, logger)
	startCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer a.Close()

	queue := jobs.NewQueue(cfg.Jobs.QueueCapacity, logger)

	handler := api.NewRouter(api.RouterDeps{
		Environment: cfg.Environment,
		Build:       buildInfo(),
		Logger:      logger,
		Review:      a.review,
		Wikidata:    a.importer,
		Titles:      a.titles,
		Queue:       queue,
		DB:          a.repo,
		Migrations: func(ctx context.Context) (uint, bool, error) {
			return postgres.MigrationVersion(cfg.Database.URL, cfg.Database.MigrationsPath)
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Minute, // synchronous imports page through the whole query
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Jobs.RiverEnabled {
		if err := startRiver(gctx, g, cfg, a, logger); err != nil {
			return err
		}
	} else {
		logger.Warn().Msg("river disabled; scheduled imports and staging cleanup will not run")
	}

	g.Go(func() error {
		queue.Run(gctx)
		return nil
	})

	dbCollector := metrics.NewDBCollector(a.pool)
	g.Go(func() error {
		dbCollector.Start(gctx, 15*time.Second)
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		dbCollector.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// startRiver migrates River's schema and runs its client until ctx ends.
func startRiver(ctx context.Context, g *errgroup.Group, cfg config.Config, a *app, logger zerolog.Logger) error {
	if err := jobs.MigrateRiver(ctx, a.pool); err != nil {
		return err
	}

	slogger := config.NewSlogLogger(cfg.Logging)
	policy := jobs.NewRetryPolicy(cfg.Jobs.RetryWikidataRuns)
	client, err := jobs.NewClient(a.pool, jobs.ClientOptions{
		Workers: jobs.NewWorkers(jobs.WorkerDeps{
			Importer:          a.importer,
			Cleaner:           a.review,
			RejectedRetention: cfg.Jobs.RejectedRetention,
			Logger:            slogger,
		}),
		Logger:       slogger,
		Hooks:        []rivertype.Hook{metrics.NewRiverMetricsHook()},
		PeriodicJobs: jobs.NewPeriodicJobs(policy, cfg.Jobs.ImportInterval),
		Policy:       policy,
		Alert:        email.NewAlerter(cfg.Alerts, cfg.Environment, logger).JobFailed,
	})
	if err != nil {
		return fmt.Errorf("river client init failed: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("river workers failed to start: %w", err)
	}
	logger.Info().Dur("import_interval", cfg.Jobs.ImportInterval).Msg("river workers started")

	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("river workers shutdown error")
			return nil
		}
		logger.Info().Msg("river workers stopped")
		return nil
	})
	return nil
}
