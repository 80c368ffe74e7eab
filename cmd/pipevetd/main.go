// Pipevetd is the pipeline validation and observability daemon.
//
// This binary starts the validation engine with full service initialization:
// the stage validator registry, context journal, quality validator, session
// orchestrator, health rollup scheduler, alert sinks, and the read-only HTTP
// facade.
//
// Configuration is loaded from ~/.config/pipevet/config.yaml and overridden
// by PIPEVET_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	pipevetd
//
//	# Configure via environment
//	PIPEVET_SERVER_HTTP_PORT=9090 PIPEVET_STORE_PROVIDER=chromem pipevetd
//
//	# Serve the diagnostic tools over MCP stdio instead of HTTP
//	pipevetd mcp
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/alerting"
	"github.com/fyrsmithlabs/pipevet/internal/config"
	"github.com/fyrsmithlabs/pipevet/internal/embeddings"
	"github.com/fyrsmithlabs/pipevet/internal/health"
	"github.com/fyrsmithlabs/pipevet/internal/httpapi"
	"github.com/fyrsmithlabs/pipevet/internal/journal"
	"github.com/fyrsmithlabs/pipevet/internal/logging"
	"github.com/fyrsmithlabs/pipevet/internal/orchestrator"
	"github.com/fyrsmithlabs/pipevet/internal/quality"
	"github.com/fyrsmithlabs/pipevet/internal/secrets"
	"github.com/fyrsmithlabs/pipevet/internal/stages"
	"github.com/fyrsmithlabs/pipevet/internal/store"
	"github.com/fyrsmithlabs/pipevet/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath = flag.String("config", "", "path to config.yaml (default ~/.config/pipevet/config.yaml)")

func main() {
	flag.Parse()
	args := flag.Args()

	mcpMode := false
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		case "mcp":
			mcpMode = true
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  pipevetd           Start the validation daemon\n")
			fmt.Fprintf(os.Stderr, "  pipevetd mcp       Serve diagnostic tools over MCP stdio\n")
			fmt.Fprintf(os.Stderr, "  pipevetd version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if mcpMode {
		if err := runMCPServer(ctx, *configPath); err != nil {
			log.Fatalf("MCP server error: %v", err)
		}
		return
	}

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("pipevetd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize telemetry and the structured logger
//  3. Build infrastructure (embeddings, store, alert sinks, scrubber)
//  4. Build the engine (journal, registry, quality, health, orchestrator)
//  5. Start the health rollup scheduler and the config watcher
//  6. Start the HTTP facade
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()
	zl := logger.Underlying()

	zl.Info("Starting pipevetd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store_provider", cfg.Store.Provider),
		zap.String("embeddings_provider", cfg.Embeddings.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	deps, err := initDependencies(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	zl.Info("Dependencies initialized",
		zap.Bool("store_ready", deps.store != nil),
		zap.Bool("similarity_search", deps.searcher != nil),
		zap.String("alert_sink", deps.sink.Name()))

	engine, err := initEngine(cfg, deps, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer func() {
		_ = engine.Close()
	}()

	if err := engine.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start health scheduler: %w", err)
	}
	defer func() {
		_ = engine.scheduler.Stop()
	}()

	startConfigWatcher(ctx, configPath, engine.quality, zl)

	srv, err := httpapi.NewServer(engine.svc, deps.searcher, deps.detector, zl, cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	zl.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/v1/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	// Blocks until context cancellation
	return srv.Start(ctx)
}

// dependencies holds infrastructure collaborators shared by the engine.
type dependencies struct {
	embedder embeddings.Provider
	store    store.Store
	searcher store.SimilaritySearcher
	sink     alerting.Sink
	scrubber secrets.Scrubber
	detector *secrets.Detector
	logger   *zap.Logger
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if closer, ok := d.sink.(io.Closer); ok {
		_ = closer.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.embedder != nil {
		_ = d.embedder.Close()
	}
}

// initDependencies builds the embedding provider, session archive, alert
// sinks, and credential hygiene collaborators.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey.Value(),
		CacheDir: cfg.Embeddings.CacheDir,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	st, err := store.NewStore(cfg.Store, embedder, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	searcher, _ := st.(store.SimilaritySearcher)

	sink, err := alerting.NewSink(ctx, cfg.Alerting, logger)
	if err != nil {
		_ = st.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to create alert sink: %w", err)
	}

	var scrubber secrets.Scrubber = &secrets.NoopScrubber{}
	if !cfg.Secrets.ScrubDisabled {
		scrubber, err = secrets.New(secrets.DefaultConfig())
		if err != nil {
			_ = st.Close()
			_ = embedder.Close()
			return nil, fmt.Errorf("failed to create scrubber: %w", err)
		}
	}

	// A malformed allowlist fails startup; a missing file is fine.
	allow, err := secrets.LoadAllowlist(".", cfg.Secrets.AllowlistPath)
	if err != nil {
		_ = st.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to load secrets allowlist: %w", err)
	}
	detector, err := secrets.NewDetector(allow)
	if err != nil {
		logger.Warn("deep credential audit unavailable", zap.Error(err))
		detector = nil
	}

	return &dependencies{
		embedder: embedder,
		store:    st,
		searcher: searcher,
		sink:     sink,
		scrubber: scrubber,
		detector: detector,
		logger:   logger,
	}, nil
}

// engine holds the validation services built over the dependencies.
type engine struct {
	tracker   journal.Tracker
	quality   quality.Validator
	scheduler *health.Scheduler
	svc       orchestrator.Service
}

// Close shuts the orchestrator and journal down.
func (e *engine) Close() error {
	err := e.svc.Close()
	if jerr := e.tracker.Close(); err == nil {
		err = jerr
	}
	return err
}

// initEngine wires the validation services.
func initEngine(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*engine, error) {
	tracker := journal.NewTracker(journal.PolicyFromConfig(cfg.Pipeline.CriticalFields), logger)
	registry := stages.NewDefaultRegistry(logger)
	validator := quality.NewValidator(cfg.Quality, deps.embedder, logger)

	aggregator, err := health.NewAggregator(deps.store, cfg.Health, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create health aggregator: %w", err)
	}
	scheduler, err := health.NewScheduler(aggregator, logger,
		health.WithInterval(cfg.Health.RollupInterval.Duration()))
	if err != nil {
		return nil, fmt.Errorf("failed to create health scheduler: %w", err)
	}

	svc, err := orchestrator.NewService(registry, tracker, validator, deps.store,
		aggregator, deps.sink, deps.scrubber, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return &engine{
		tracker:   tracker,
		quality:   validator,
		scheduler: scheduler,
		svc:       svc,
	}, nil
}

// startConfigWatcher hot-reloads tunable quality thresholds when the config
// file changes. Watcher failure is logged, never fatal; structural settings
// still require a restart.
func startConfigWatcher(ctx context.Context, path string, validator quality.Validator, logger *zap.Logger) {
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
			return
		}
	}
	if _, err := os.Stat(path); err != nil {
		logger.Debug("config hot reload disabled: no config file", zap.String("path", path))
		return
	}

	watcher, err := config.NewWatcher(path)
	if err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
		return
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
		return
	}

	go func() {
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case reload, ok := <-watcher.Reloads():
				if !ok {
					return
				}
				validator.UpdateConfig(reload.Config.Quality)
				logger.Info("quality thresholds reloaded",
					zap.Time("reloaded_at", reload.Timestamp),
					zap.Float64("relevance_gate", reload.Config.Quality.RelevanceGate))
			}
		}
	}()
}

// initTelemetry builds the OTEL provider from observability config.
// Telemetry degrades gracefully when no collector is reachable.
func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Observability.EnableTelemetry
	if cfg.Observability.ServiceName != "" {
		telCfg.ServiceName = cfg.Observability.ServiceName
	}
	telCfg.ServiceVersion = version
	return telemetry.New(ctx, telCfg)
}

// initLogger builds the structured logger, bridged to OTEL when telemetry
// is enabled.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if tel != nil && tel.IsEnabled() {
		logCfg.Output.OTEL = true
		return logging.NewLogger(logCfg, tel.LoggerProvider())
	}
	return logging.NewLogger(logCfg, nil)
}
