// Package main is the clarity command line entry point.
//
// Clarity analyzes heterogeneous service logs: it merges them into a single
// timeline, diagnoses the failure with an AI oracle (falling back to local
// heuristics when the oracle is unreachable) and selects a remediation
// command from a catalog. The same binary also serves the remediation
// catalog as MCP tools over stdio plus a local HTTP API.
//
// Configuration comes from defaults, an optional JSON file (CONFIG_FILE) and
// environment variables, in that precedence order:
//   - ORACLE_URL / ORACLE_API_KEY: AI oracle endpoint and credentials
//     (optional - analysis degrades to local heuristics without them)
//   - TOOL_SERVER_HOST / TOOL_SERVER_PORT: remediation tool server address
//   - ENVIRONMENT: set to "production" for production logging
//
// Example usage:
//
//	clarity analyze --source /var/log/api.ndjson:ndjson --source /var/log/user.csv:csv
//	clarity monitor --source /var/log/api.ndjson --interval 30s
//	clarity serve-tools --port 8001
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/audit"
	"github.com/clarityops/clarity/internal/cli"
	"github.com/clarityops/clarity/internal/config"
	"github.com/clarityops/clarity/internal/metrics"
	"github.com/clarityops/clarity/internal/tracing"
)

// Build information - set at build time via ldflags
// For GoReleaser builds: -X main.version={{.Version}} -X main.commit={{.Commit}} ...
// For manual builds: make build VERSION=0.5.0
var (
	version = "dev"     // e.g., "v0.4.0" or "dev"
	commit  = "unknown" // Git commit SHA
	builtBy = "manual"  // "goreleaser" or "manual"
)

func main() {
	// Load .env file if it exists (optional, for development)
	_ = godotenv.Load()

	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync() // Ignore error on cleanup
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Starting clarity",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("built_by", builtBy),
		zap.Any("config", cfg.Redact()),
	)

	shutdownTracing, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "clarity",
		ServiceVersion: version,
		Environment:    os.Getenv("ENVIRONMENT"),
		Enabled:        cfg.EnableTracing,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = cli.Execute(ctx, cli.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(logger),
		Audit:   audit.NewLogger(logger, cfg.EnableAuditLog),
		Version: version,
		Commit:  commit,
		BuiltBy: builtBy,
	})
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if terr := shutdownTracing(shutdownCtx); terr != nil {
		logger.Warn("Tracing shutdown failed", zap.Error(terr))
	}
	cancel()

	if err != nil {
		logger.Error("Command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// initLogger creates a production logger if ENVIRONMENT=production, otherwise
// a development logger with more verbose output. Logs stay on stderr so
// rendered panels and MCP stdio framing remain clean.
func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENVIRONMENT")
	if env == "production" {
		return zap.NewProduction()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
