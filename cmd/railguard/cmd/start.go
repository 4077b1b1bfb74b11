package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/railguard-io/railguard/internal/adapter/inbound/admin"
	"github.com/railguard-io/railguard/internal/adapter/inbound/http"
	"github.com/railguard-io/railguard/internal/adapter/outbound/cel"
	"github.com/railguard-io/railguard/internal/adapter/outbound/guardrails"
	"github.com/railguard-io/railguard/internal/adapter/outbound/memory"
	"github.com/railguard-io/railguard/internal/adapter/outbound/seed"
	"github.com/railguard-io/railguard/internal/adapter/outbound/sqlite"
	"github.com/railguard-io/railguard/internal/config"
	"github.com/railguard-io/railguard/internal/domain/guardrail"
	"github.com/railguard-io/railguard/internal/domain/policy"
	"github.com/railguard-io/railguard/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the policy engine server",
	Long: `Start the Railguard policy engine server.

The server exposes the gateway hooks (POST /hooks/pre-call and
POST /hooks/post-call), the admin API under /admin/api/, Prometheus
metrics on /metrics, and a health probe on /healthz.

Examples:
  # Start with config file settings
  railguard start

  # Start with a specific config file
  railguard --config /path/to/railguard.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, builtin guardrails)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
		cfg.SetDevDefaults()
	}

	// stop() restores default signal handling so a second Ctrl+C does a
	// hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("railguard stopped")
	return nil
}

// run wires all components together and starts the HTTP transport.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// ----- Tracing -----
	tracer, shutdownTracing, err := setupTracing(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer shutdownTracing()

	// ----- Stores -----
	var (
		policyStore     policy.Store
		attachmentStore policy.AttachmentStore
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		defer func() { _ = db.Close() }()
		policyStore = sqlite.NewPolicyStore(db)
		attachmentStore = sqlite.NewAttachmentStore(db)
		logger.Info("storage backend: sqlite", "path", cfg.Storage.Path)
	default:
		policyStore = memory.NewPolicyStore()
		attachmentStore = memory.NewAttachmentStore()
		logger.Info("storage backend: memory")
	}

	// ----- Guardrail registry -----
	registry := memory.NewGuardrailRegistry()
	if err := registerGuardrails(cfg, registry); err != nil {
		return err
	}
	logger.Info("guardrails registered", "names", strings.Join(registry.Names(), ","))

	// ----- Metrics -----
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(promRegistry)

	// ----- Services -----
	resolver := service.NewResolverService(policyStore, attachmentStore, logger,
		service.WithResolverCacheSize(cfg.Resolver.CacheSize))

	conditionValidator, err := cel.NewConditionValidator()
	if err != nil {
		return fmt.Errorf("failed to create condition validator: %w", err)
	}

	policyAdmin := service.NewPolicyAdminService(policyStore, attachmentStore, resolver, conditionValidator, logger)
	attachmentAdmin := service.NewAttachmentAdminService(attachmentStore, policyStore, resolver, logger)

	builder := guardrail.NewBuilder(registry)
	executor := guardrail.NewExecutor(registry,
		guardrail.WithLogger(logger),
		guardrail.WithTracer(tracer),
		guardrail.WithFailOpen(cfg.Pipeline.FailOpen),
		guardrail.WithStepTimeout(cfg.Pipeline.StepTimeout),
	)

	hooks := service.NewHookService(resolver, builder, executor, metrics, logger)

	// ----- Seed file -----
	if cfg.Seed.File != "" {
		loader := seed.NewLoader(policyStore, attachmentStore, resolver, logger)
		if err := loader.Load(ctx, cfg.Seed.File); err != nil {
			return fmt.Errorf("failed to load seed file: %w", err)
		}
		if cfg.Seed.Watch {
			watcher := seed.NewWatcher(loader, cfg.Seed.File, logger)
			go func() {
				if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
					logger.Error("seed watcher failed", "error", err)
				}
			}()
		}
	}

	// ----- HTTP transport -----
	apiHandler := admin.NewAdminAPIHandler(
		admin.WithPolicyAdminService(policyAdmin),
		admin.WithAttachmentAdminService(attachmentAdmin),
		admin.WithResolverService(resolver),
		admin.WithPipelineBuilder(builder),
		admin.WithPipelineExecutor(executor),
		admin.WithAPILogger(logger),
	)

	transport := http.NewHTTPTransport(hooks,
		http.WithAddr(cfg.Server.Addr),
		http.WithAdminHandler(apiHandler.Routes()),
		http.WithRegistry(promRegistry),
		http.WithLogger(logger),
	)

	logger.Info("railguard starting",
		"version", Version,
		"addr", cfg.Server.Addr,
		"dev_mode", cfg.DevMode,
		"storage", cfg.Storage.Backend,
		"fail_open", cfg.Pipeline.FailOpen,
		"seed_file", cfg.Seed.File,
	)

	return transport.Start(ctx)
}

// registerGuardrails registers the configured builtin and remote
// guardrails into the registry.
func registerGuardrails(cfg *config.Config, registry *memory.GuardrailRegistry) error {
	if cfg.Guardrails.PII.Enabled {
		patterns := make([]guardrails.PIIPattern, 0, len(cfg.Guardrails.PII.Patterns))
		for _, p := range cfg.Guardrails.PII.Patterns {
			patterns = append(patterns, guardrails.PIIPattern(p))
		}
		detector, err := guardrails.NewPIIDetector(guardrails.PIIDetectorConfig{
			Redact:          cfg.Guardrails.PII.Redact,
			EnabledPatterns: patterns,
		})
		if err != nil {
			return fmt.Errorf("failed to create PII detector: %w", err)
		}
		registry.Register("pii", detector)
	}
	if cfg.Guardrails.Blocklist.Enabled {
		registry.Register("blocklist", guardrails.NewKeywordBlocklist(cfg.Guardrails.Blocklist.Keywords))
	}
	for _, rc := range cfg.Guardrails.Remote {
		client := &stdhttp.Client{Timeout: rc.Timeout}
		registry.Register(rc.Name, guardrails.NewRemoteGuardrail(rc.Name, rc.URL, client))
	}
	return nil
}

// setupTracing configures the OpenTelemetry tracer. When tracing is
// disabled a no-op tracer is returned.
func setupTracing(cfg *config.Config) (trace.Tracer, func(), error) {
	if !cfg.Tracing.Enabled {
		return nil, func() {}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}
	return tp.Tracer("railguard/pipeline"), shutdown, nil
}

// parseLogLevel converts a string log level to slog.Level. Unrecognized
// values fall back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
