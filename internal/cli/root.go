// Package cli wires the clarity commands. Each command lives in its own file
// and registers itself on the shared root command.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/analysis"
	"github.com/clarityops/clarity/internal/audit"
	"github.com/clarityops/clarity/internal/config"
	"github.com/clarityops/clarity/internal/dispatch"
	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/metrics"
	"github.com/clarityops/clarity/internal/models"
	"github.com/clarityops/clarity/internal/oracle"
	"github.com/clarityops/clarity/internal/parser"
	"github.com/clarityops/clarity/internal/remedy"
)

// Dependencies carries everything main constructs for the commands.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Audit   *audit.Logger
	Version string
	Commit  string
	BuiltBy string
}

var deps Dependencies

var rootCmd = &cobra.Command{
	Use:   "clarity",
	Short: "Analyze service logs, diagnose incidents and suggest remediations",
	Long: `Clarity merges heterogeneous service logs into one timeline, diagnoses
the failure with an AI oracle (or deterministic local heuristics when the
oracle is unreachable) and selects a remediation command from a catalog.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. The context carries signal cancellation from main.
func Execute(ctx context.Context, d Dependencies) error {
	deps = d
	rootCmd.Version = d.Version
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// parseSourceArgs maps path[:format] values to declared sources. Priorities
// follow declaration order and break timestamp ties in the merge.
func parseSourceArgs(args []string) ([]models.Source, error) {
	if len(args) == 0 {
		return nil, clerrors.NewInvalidInput("at least one --source is required")
	}
	sources := make([]models.Source, 0, len(args))
	for i, arg := range args {
		path, format := arg, models.FormatAuto
		if idx := strings.LastIndexByte(arg, ':'); idx >= 0 {
			f, ok := models.ParseFormat(arg[idx+1:])
			if !ok {
				return nil, clerrors.NewInvalidInput(fmt.Sprintf("unknown source format %q in %q", arg[idx+1:], arg))
			}
			path, format = arg[:idx], f
		}
		if path == "" {
			return nil, clerrors.NewInvalidInput(fmt.Sprintf("source %q has no path", arg))
		}
		sources = append(sources, models.Source{Path: path, Format: format, Priority: i + 1})
	}
	return sources, nil
}

// newOracleClient builds the oracle client when configuration allows it. A
// nil client is valid: verdicts and answers then come from local heuristics.
func newOracleClient() (oracle.Client, func()) {
	noop := func() {}
	if err := deps.Config.RequireOracle(); err != nil {
		deps.Logger.Info("AI oracle not configured, using local fallbacks",
			zap.String("reason", err.Error()),
		)
		return nil, noop
	}
	c, err := oracle.NewHTTPClient(deps.Config, deps.Logger, deps.Metrics, deps.Version)
	if err != nil {
		deps.Logger.Warn("Failed to build oracle client, using local fallbacks", zap.Error(err))
		return nil, noop
	}
	return c, func() { _ = c.Close() }
}

// newOrchestrator assembles the analysis pipeline. The returned cleanup
// releases the dispatcher when one was requested.
func newOrchestrator(catalogPath string, withDispatch bool, oracleClient oracle.Client) (*analysis.Orchestrator, func(), error) {
	catalog, err := remedy.LoadCatalog(catalogPath)
	if err != nil {
		return nil, nil, err
	}

	opts := analysis.Options{
		Parser:   parser.New(deps.Logger),
		Oracle:   oracleClient,
		Selector: remedy.NewSelector(deps.Config.DefaultComponent),
		Catalog:  catalog,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
		Audit:    deps.Audit,
	}

	cleanup := func() {}
	if withDispatch {
		d, err := dispatch.New(deps.Config.ToolServerURL(), deps.Config, deps.Logger, deps.Metrics, deps.Version)
		if err != nil {
			return nil, nil, err
		}
		opts.Dispatcher = d
		cleanup = func() { _ = d.Close() }
	}
	return analysis.New(opts), cleanup, nil
}
