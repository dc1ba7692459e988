package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guillermoBallester/tabula/internal/adapter/httpapi"
	"github.com/guillermoBallester/tabula/internal/adapter/mcp"
	"github.com/guillermoBallester/tabula/internal/adapter/policy"
	"github.com/guillermoBallester/tabula/internal/adapter/postgres"
	"github.com/guillermoBallester/tabula/internal/adapter/render"
	"github.com/guillermoBallester/tabula/internal/audit"
	"github.com/guillermoBallester/tabula/internal/config"
	"github.com/guillermoBallester/tabula/internal/core/port"
	"github.com/guillermoBallester/tabula/internal/core/service"
	"github.com/guillermoBallester/tabula/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/trace"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting tabula",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("source", cfg.Source),
		slog.String("transport", cfg.Transport),
		slog.Int("page_size", cfg.PageSize),
		slog.String("null_label", cfg.NullLabel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Telemetry
	var tracer trace.Tracer
	var inst port.Instrumentation
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "tabula", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
		tracer = telemetry.Tracer()
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	// Audit
	var auditor port.FetchAuditor = port.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = fa.Close() }()
		auditor = fa
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Dataset source
	source, closeSource, err := newSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	// Policy decorator (optional).
	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		source = policy.NewSource(source, pol)
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
	}

	// MCP server, then the services that report through it.
	mcpServer := mcp.NewServer(version, logger, tracer, inst)
	notifier := mcp.NewNotifier(mcpServer, logger)

	view := service.NewViewController(source, cfg.PageSize, notifier, auditor, logger, tracer, inst)
	chart := service.NewChartService(source, view, render.NewRenderer(0, 0), cfg.NullLabel, notifier, auditor, logger, tracer, inst)
	view.OnDatasetSwitch(chart.Invalidate)
	datasets := service.NewDatasetService(source, view, notifier, auditor, logger, tracer, inst)

	mcp.RegisterTools(mcpServer, mcp.Services{Datasets: datasets, View: view, Chart: chart})

	switch cfg.Transport {
	case config.TransportHTTP:
		return serveHTTP(ctx, cfg, mcpServer, logger)
	default:
		stdioServer := mcpserver.NewStdioServer(mcpServer)
		logger.Info("serving MCP over stdio")
		if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// newSource builds the configured dataset source. The returned func releases
// its resources.
func newSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (port.DatasetSource, func(), error) {
	switch cfg.Source {
	case config.SourcePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database pool connected",
			slog.String("db.system", "postgresql"),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return postgres.NewSource(pool, cfg.Schemas, cfg.SampleLimit, cfg.RequestTimeout), pool.Close, nil

	default:
		creds := httpapi.NewCredentials(cfg.APIToken)
		client := httpapi.NewClient(cfg.APIBaseURL, creds, httpapi.Options{
			Timeout:     cfg.RequestTimeout,
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			RateLimit:   cfg.RateLimitRPS,
			Burst:       cfg.RateLimitBurst,
			Logger:      logger,
		})
		logger.Info("dataset api configured",
			slog.String("url.full", redactURL(cfg.APIBaseURL)),
			slog.Bool("authenticated", creds.Valid()),
		)
		return client, creds.Teardown, nil
	}
}

func serveHTTP(ctx context.Context, cfg *config.Config, mcpServer *mcpserver.MCPServer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", bearerAuthMiddleware(mcpserver.NewStreamableHTTPServer(mcpServer), cfg.HTTPBearerToken))
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// parseFlags reads CLI flags into config overrides. Only flags that were
// set on the command line override the environment.
func parseFlags(args []string) (config.Overrides, error) {
	fs := pflag.NewFlagSet("tabula", pflag.ContinueOnError)

	source := fs.String("source", "", "dataset source: http or postgres")
	apiBaseURL := fs.String("api-base-url", "", "dataset API base URL")
	apiToken := fs.String("api-token", "", "bearer token for the dataset API")
	databaseURL := fs.String("database-url", "", "PostgreSQL connection URL")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn or error")
	pageSize := fs.Int("page-size", 0, "rows per table page")
	requestTimeout := fs.Duration("request-timeout", 0, "timeout per collaborator request")
	nullLabel := fs.String("null-label", "", "category label for null cells")
	policyFile := fs.String("policy-file", "", "path to the display policy YAML")
	transport := fs.String("transport", "", "MCP transport: stdio or http")
	httpAddr := fs.String("http-addr", "", "listen address for the HTTP transport")
	httpBearerToken := fs.String("http-bearer-token", "", "bearer token required by the HTTP transport")
	otelEnabled := fs.Bool("otel", false, "export traces and metrics over OTLP")
	auditLog := fs.String("audit-log", "", "path to the NDJSON fetch audit log")
	poolMaxConns := fs.Int32("pool-max-conns", 0, "maximum PostgreSQL pool connections")
	poolMinConns := fs.Int32("pool-min-conns", 0, "minimum PostgreSQL pool connections")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum PostgreSQL connection lifetime")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	o := config.Overrides{
		OTelEnabled: *otelEnabled,
		AuditLog:    *auditLog,
	}
	setString := func(name string, v *string, dst **string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	setString("source", source, &o.Source)
	setString("api-base-url", apiBaseURL, &o.APIBaseURL)
	setString("api-token", apiToken, &o.APIToken)
	setString("database-url", databaseURL, &o.DatabaseURL)
	setString("log-level", logLevel, &o.LogLevel)
	setString("null-label", nullLabel, &o.NullLabel)
	setString("policy-file", policyFile, &o.PolicyFile)
	setString("transport", transport, &o.Transport)
	setString("http-addr", httpAddr, &o.HTTPAddr)
	setString("http-bearer-token", httpBearerToken, &o.HTTPBearerToken)

	if fs.Changed("page-size") {
		o.PageSize = pageSize
	}
	if fs.Changed("request-timeout") {
		o.RequestTimeout = requestTimeout
	}
	if fs.Changed("pool-max-conns") {
		o.PoolMaxConns = poolMaxConns
	}
	if fs.Changed("pool-min-conns") {
		o.PoolMinConns = poolMinConns
	}
	if fs.Changed("pool-max-conn-lifetime") {
		o.PoolMaxConnLifetime = poolMaxConnLifetime
	}

	return o, nil
}

// redactURL masks the password of a URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
