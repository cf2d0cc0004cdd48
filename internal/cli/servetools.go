package cli

import (
	"github.com/spf13/cobra"

	"github.com/clarityops/clarity/internal/remedy"
	"github.com/clarityops/clarity/internal/toolserver"
)

var (
	servePort     int
	serveBind     string
	serveCatalog  string
	serveHTTPOnly bool
)

var serveToolsCmd = &cobra.Command{
	Use:   "serve-tools",
	Short: "Run the remediation tool server (MCP stdio + HTTP)",
	Long: `Serve-tools exposes the remediation catalog as MCP tools on stdio and
as a local HTTP API with health probes and Prometheus metrics. Commands are
rendered as text, never executed against a cluster.`,
	RunE: runServeTools,
}

func init() {
	serveToolsCmd.Flags().IntVar(&servePort, "port", 8001, "HTTP port")
	serveToolsCmd.Flags().StringVar(&serveBind, "bind", "127.0.0.1", "HTTP bind address")
	serveToolsCmd.Flags().StringVar(&serveCatalog, "catalog", "", "path to a YAML remediation catalog")
	serveToolsCmd.Flags().BoolVar(&serveHTTPOnly, "http-only", false, "serve only the HTTP API, no MCP stdio")
	rootCmd.AddCommand(serveToolsCmd)
}

func runServeTools(cmd *cobra.Command, _ []string) error {
	cfg := deps.Config
	if cmd.Flags().Changed("port") {
		cfg.ToolServerPort = servePort
	}
	if cmd.Flags().Changed("bind") {
		cfg.ToolServerHost = serveBind
	}

	catalog, err := remedy.LoadCatalog(serveCatalog)
	if err != nil {
		return err
	}

	srv, err := toolserver.New(cfg, catalog, deps.Logger, deps.Metrics, deps.Audit, deps.Version)
	if err != nil {
		return err
	}
	if serveHTTPOnly {
		return srv.RunHTTP(cmd.Context())
	}
	return srv.Run(cmd.Context())
}
