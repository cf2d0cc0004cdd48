package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/audit"
	"github.com/clarityops/clarity/internal/config"
	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/health"
	"github.com/clarityops/clarity/internal/metrics"
	"github.com/clarityops/clarity/internal/prompts"
	"github.com/clarityops/clarity/internal/remedy"
	"github.com/clarityops/clarity/internal/resources"
	"github.com/clarityops/clarity/internal/tracing"
)

// maxRequestBytes bounds tool execution request bodies.
const maxRequestBytes = 1 << 20

// Server hosts the remediation tools. The same tool set is reachable over
// MCP stdio and over HTTP on one local port.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger
	catalog remedy.Catalog
	version string

	mcpServer  *mcp.Server
	tools      map[string]Tool
	health     *health.Handler
	httpServer *http.Server
}

// New assembles the server and registers one tool per catalog entry plus the
// discovery tool. An empty catalog falls back to the built-in default.
func New(cfg *config.Config, catalog remedy.Catalog, logger *zap.Logger, recorder *metrics.Metrics, auditLog *audit.Logger, version string) (*Server, error) {
	if cfg == nil {
		return nil, clerrors.NewInvalidInput("configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger, false)
	}
	if len(catalog) == 0 {
		catalog = remedy.DefaultCatalog()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "Clarity Remediation Tool Server",
		Version: version,
	}, &mcp.ServerOptions{
		HasTools:     true,
		HasPrompts:   true,
		HasResources: true,
	})

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   recorder,
		audit:     auditLog,
		catalog:   catalog,
		version:   version,
		mcpServer: mcpServer,
		tools:     make(map[string]Tool),
	}

	checker := health.New(logger, health.Run("catalog", s.checkCatalog))
	s.health = health.NewHandler(checker, logger)

	for _, def := range catalog {
		s.registerTool(newRemediationTool(def, cfg.DefaultComponent, logger))
	}
	s.registerTool(newListTool(catalog))
	s.registerPrompts()
	s.registerResources()

	s.httpServer = &http.Server{
		Addr:              cfg.ToolServerAddr(),
		Handler:           s.Handler(),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info("Registered remediation tools",
		zap.Int("count", len(s.tools)),
		zap.Strings("catalog", catalog.Names()),
	)
	return s, nil
}

// registerTool wires one tool into the MCP server and the HTTP lookup table.
func (s *Server) registerTool(t Tool) {
	name := t.Name()
	if _, exists := s.tools[name]; exists {
		s.logger.Warn("Skipping duplicate tool registration", zap.String("tool", name))
		return
	}
	s.tools[name] = t

	mcpTool := &mcp.Tool{
		Name:        name,
		Description: t.Description(),
		InputSchema: t.InputSchema(),
		Annotations: t.Annotations(),
	}
	handler := func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]interface{}
		if len(request.Params.Arguments) > 0 {
			if err := json.Unmarshal(request.Params.Arguments, &args); err != nil {
				return nil, clerrors.NewInvalidInput(fmt.Sprintf("arguments must be a JSON object: %v", err))
			}
		}
		payload, err := s.execute(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return jsonResult(payload)
	}

	s.mcpServer.AddTool(mcpTool, handler)
	s.logger.Debug("Registered tool", zap.String("tool", name))
}

// registerPrompts registers the guided incident workflows
func (s *Server) registerPrompts() {
	registry := prompts.NewRegistry(s.logger)

	for _, p := range registry.GetPrompts() {
		s.mcpServer.AddPrompt(p.Prompt, p.Handler)
		s.logger.Debug("Registered prompt", zap.String("prompt", p.Prompt.Name))
	}
}

// registerResources registers the introspection resources and templates
func (s *Server) registerResources() {
	registry := resources.NewRegistry(s.cfg, s.catalog, s.audit, s.logger, s.version)

	for _, r := range registry.GetResources() {
		s.mcpServer.AddResource(r.Resource, r.Handler)
		s.logger.Debug("Registered resource", zap.String("uri", r.Resource.URI))
	}

	templateHandler := registry.GetTemplateHandler()
	for _, t := range registry.GetResourceTemplates() {
		s.mcpServer.AddResourceTemplate(&t, templateHandler)
		s.logger.Debug("Registered resource template", zap.String("uri_template", t.URITemplate))
	}
}

// execute runs one tool by name. Both the MCP handler and the HTTP surface
// go through here so instrumentation stays identical.
func (s *Server) execute(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, ok := s.tools[name]
	if !ok {
		return nil, clerrors.NewToolNotFound(name)
	}

	start := time.Now()
	ctx, span := tracing.ToolSpan(ctx, name)
	defer span.End()

	payload, err := tool.Run(ctx, args)
	success := err == nil
	if s.metrics != nil {
		s.metrics.RecordToolExecution(name, success, time.Since(start))
	}
	component, _ := args["service_name"].(string)
	s.audit.LogToolExecution(ctx, name, "execute", component, success, time.Since(start), err)
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.Warn("Tool execution failed",
			zap.String("tool", name),
			zap.Error(err),
		)
		return nil, err
	}
	tracing.SetSuccess(span)
	return payload, nil
}

func (s *Server) checkCatalog(context.Context) (health.Status, string) {
	if len(s.catalog) == 0 {
		return health.StatusUnhealthy, "remediation catalog is empty"
	}
	if _, ok := s.catalog.Find(remedy.FallbackToolName); !ok {
		return health.StatusDegraded, "catalog has no manual_review fallback"
	}
	return health.StatusHealthy, fmt.Sprintf("%d tools registered", len(s.tools))
}

// Handler returns the HTTP surface: probe endpoints, Prometheus metrics, and
// the remediation tool API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health.Health)
	mux.HandleFunc("/ready", s.health.Ready)
	mux.HandleFunc("/live", s.health.Live)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/tools", s.handleListTools)
	mux.HandleFunc("/tools/", s.handleExecuteTool)
	return mux
}

// Run serves MCP over stdio with the HTTP surface alongside, until the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		s.logger.Info("Starting HTTP surface", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP surface failed", zap.Error(err))
		}
	}()
	s.health.SetReady(true)
	defer func() {
		if s.metrics != nil {
			s.metrics.LogStats()
		}
		if err := s.shutdownHTTP(); err != nil {
			s.logger.Error("Failed to shut down HTTP surface", zap.Error(err))
		}
	}()

	s.logger.Info("Serving MCP over stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RunHTTP serves the HTTP surface alone, for deployments where no MCP host
// attaches to stdio.
func (s *Server) RunHTTP(ctx context.Context) error {
	s.health.SetReady(true)
	s.logger.Info("Starting HTTP surface", zap.String("addr", s.httpServer.Addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("tool server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.shutdownHTTP()
	}
}

func (s *Server) shutdownHTTP() error {
	s.health.SetReady(false)
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP surface")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("tool server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, toolList{Tools: s.catalog})
}

type executeRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/tools/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "unknown tool path")
		return
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	var req executeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed request body: %v", err))
			return
		}
	}

	payload, err := s.execute(r.Context(), name, req.Parameters)
	if err != nil {
		writeError(w, statusFor(err), errorMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func statusFor(err error) int {
	switch {
	case clerrors.HasCode(err, clerrors.CodeToolNotFound):
		return http.StatusNotFound
	case clerrors.HasCode(err, clerrors.CodeMissingParameter),
		clerrors.HasCode(err, clerrors.CodeInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var se *clerrors.StructuredError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
