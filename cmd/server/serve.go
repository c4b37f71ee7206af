package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"intake-pipeline/backend/internal/api"
	"intake-pipeline/backend/internal/config"
	"intake-pipeline/backend/internal/logging"
	"intake-pipeline/backend/internal/mcp"
	"intake-pipeline/backend/internal/repository"
	"intake-pipeline/backend/internal/services"
	"intake-pipeline/backend/internal/status"
	"intake-pipeline/backend/internal/stream"
	"intake-pipeline/backend/internal/tls"
)

func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format).With("service", "intake-pipeline")
	return cfg, logger, nil
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"pipeline_url", cfg.Pipeline.APIURL,
		"pipeline_enabled", cfg.Pipeline.Enabled,
		"swallow_errors", cfg.Pipeline.SwallowErrors,
		"db_enabled", cfg.DB.Enable,
	)

	// Initialize repository layer
	var cases repository.CaseStore
	if cfg.DB.Enable {
		pool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		defer pool.Close()
		if err := repository.Migrate(ctx, pool); err != nil {
			return err
		}
		cases = repository.NewPostgresCaseStore(pool)
		logger.Info("Database connected")
	} else {
		cases = repository.NewMemoryCaseStore()
		logger.Warn("db.enable is false, cases are kept in memory only")
	}

	submissions, err := repository.NewFileSubmissionStore(cfg.Fallback.Dir)
	if err != nil {
		return err
	}

	store := status.NewMemoryStore(cfg.Pipeline.StatusTTL)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go store.Run(sweepCtx, cfg.Pipeline.SweepInterval)

	// Initialize service layer
	client := services.NewHTTPNormalizationClient(cfg.Pipeline.APIURL)
	invoker := services.NewPipelineInvoker(client, store, logger.With("component", "invoker"), services.InvokerConfig{
		Timeout:       cfg.Pipeline.Timeout,
		SwallowErrors: cfg.Pipeline.SwallowErrors,
		Disabled:      !cfg.Pipeline.Enabled,
	})
	catalog := services.NewDocumentCatalog(cfg.Documents.Types)
	resolver := services.NewIdentifierResolver(cases, logger)
	query := services.NewStatusQueryService(resolver, store)
	retry := services.NewRetryCoordinator(resolver, store, invoker, cases, submissions, logger)
	regen := services.NewRegenerationCoordinator(resolver, store, invoker, cases, submissions, catalog, logger)
	submit, err := services.NewSubmissionService(cases, submissions, invoker, catalog, logger)
	if err != nil {
		return err
	}
	broker := stream.NewBroker(query, logger.With("component", "stream"),
		stream.WithPollInterval(cfg.Stream.PollInterval),
		stream.WithHeartbeatInterval(cfg.Stream.HeartbeatInterval),
		stream.WithCloseGrace(cfg.Stream.CloseGrace),
		stream.WithUnknownAsError(cfg.Stream.UnknownAsError),
	)

	logger.Info("Service layer initialized", "document_types", catalog.All())

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("intake-pipeline"))

	handler := api.NewHandler(api.Deps{
		Query:      query,
		Retry:      retry,
		Regenerate: regen,
		Submit:     submit,
		Broker:     broker,
		Cases:      cases,
		Store:      store,
		Logger:     logger,
		Version:    version,
	})
	api.RegisterRoutes(e, handler)

	logger.Info("REST API handlers mounted")

	if cfg.MCP.Enable {
		mcpServer := mcp.NewServer(mcp.Ops{
			StatusQueryService:      query,
			RetryCoordinator:        retry,
			RegenerationCoordinator: regen,
		}, version)
		mcpHandlers := http.NewServeMux()
		mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
		e.Any("/mcp", echo.WrapHandler(mcpHandlers))
		e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

		logger.Info("MCP protocol handlers mounted")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			generated, err := tls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
			if err != nil {
				serverErrors <- fmt.Errorf("prepare tls certificate: %w", err)
				return
			}
			if generated {
				logger.Warn("Generated self-signed certificate", "cert_file", cfg.TLS.CertFile, "hostnames", cfg.TLS.Hostnames)
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Error("Server close error", "error", err)
		}
	}

	// let accepted submissions and running invocations record their outcome
	done := make(chan struct{})
	go func() {
		submit.Wait()
		invoker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timed out with pipeline invocations still running")
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.DB.MaxConns > 0 {
		poolConfig.MaxConns = cfg.DB.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
