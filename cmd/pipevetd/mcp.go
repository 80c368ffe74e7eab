package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/config"
	"github.com/fyrsmithlabs/pipevet/internal/mcpdiag"
)

// runMCPServer starts the diagnostic tools on the MCP stdio transport.
//
// The full engine runs in-process over the configured store, so an agent
// inspecting pipeline health reads the same archive the daemon writes.
// Stdout carries the MCP protocol; all logging goes to stderr.
func runMCPServer(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.MCP.Disabled {
		return fmt.Errorf("the diagnostic MCP surface is disabled in configuration (mcp.disabled)")
	}

	// zap's production logger writes to stderr, keeping stdout clean for
	// the protocol.
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting pipevetd in MCP stdio mode",
		zap.String("version", version),
		zap.String("store_provider", cfg.Store.Provider))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	engine, err := initEngine(cfg, deps, logger)
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

	diagCfg := mcpdiag.DefaultConfig()
	diagCfg.Version = version
	diagCfg.Logger = logger
	srv, err := mcpdiag.NewServer(diagCfg, engine.svc)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintf(os.Stderr, "pipevetd MCP stdio mode started (store: %s)\n", cfg.Store.Provider)

	// Blocks until context cancellation
	return srv.Run(ctx)
}
