// Package resources provides MCP resource handlers for the remediation tool
// server. Resources expose read-only data to MCP clients: service facts,
// current configuration, the remediation catalog, and recent audit activity.
package resources

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/audit"
	"github.com/clarityops/clarity/internal/config"
	"github.com/clarityops/clarity/internal/remedy"
)

// recentAuditLimit caps how many audit entries the audit://recent
// resource returns per read.
const recentAuditLimit = 50

// Registry holds all registered resources and their handlers
type Registry struct {
	config  *config.Config
	catalog remedy.Catalog
	audit   *audit.Logger
	logger  *zap.Logger
	version string
}

// NewRegistry creates a new resource registry
func NewRegistry(cfg *config.Config, catalog remedy.Catalog, auditLog *audit.Logger, logger *zap.Logger, version string) *Registry {
	return &Registry{
		config:  cfg,
		catalog: catalog,
		audit:   auditLog,
		logger:  logger,
		version: version,
	}
}

// RegisteredResource represents a resource with its definition and handler
type RegisteredResource struct {
	Resource *mcp.Resource
	Handler  mcp.ResourceHandler
}

// GetResources returns all registered resources with their handlers
func (r *Registry) GetResources() []RegisteredResource {
	return []RegisteredResource{
		r.aboutResource(),
		r.configResource(),
		r.catalogResource(),
		r.auditResource(),
	}
}

// aboutResource returns the about://service resource
func (r *Registry) aboutResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         "about://service",
			Name:        "about://service",
			Title:       "About Clarity",
			Description: "Service information and capabilities",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			aboutInfo := map[string]interface{}{
				"service": map[string]interface{}{
					"name":        "Clarity",
					"description": "Log analysis and remediation engine: unified timelines, AI-assisted root cause verdicts, and rendered remediation commands",
					"surfaces":    []string{"analyze", "monitor", "chat", "serve-tools"},
				},
				"remediation": map[string]interface{}{
					"tool_count":     len(r.catalog) + 1, // +1 for the list tool
					"fallback_tool":  remedy.FallbackToolName,
					"known_services": remedy.KnownServices,
				},
				"mcp_server": map[string]interface{}{
					"version":      r.version,
					"capabilities": []string{"tools", "prompts", "resources"},
				},
			}

			return r.jsonContents("about://service", aboutInfo)
		},
	}
}

// configResource returns the config://current resource
func (r *Registry) configResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         "config://current",
			Name:        "config://current",
			Title:       "Server Configuration",
			Description: "Current tool server configuration (sensitive values masked)",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return r.jsonContents("config://current", r.config.Redact())
		},
	}
}

// catalogResource returns the catalog://remediation resource
func (r *Registry) catalogResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         "catalog://remediation",
			Name:        "catalog://remediation",
			Title:       "Remediation Catalog",
			Description: "Every remediation tool with its keywords and command template",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			payload := map[string]interface{}{
				"tools":    r.catalog,
				"fallback": remedy.FallbackToolName,
			}
			return r.jsonContents("catalog://remediation", payload)
		},
	}
}

// auditResource returns the audit://recent resource
func (r *Registry) auditResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         "audit://recent",
			Name:        "audit://recent",
			Title:       "Audit Trail",
			Description: "Recent analysis, monitor, and dispatch activity with aggregate statistics",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			stats := r.audit.GetStats()

			payload := map[string]interface{}{
				"stats": map[string]interface{}{
					"total_entries":       stats.TotalEntries,
					"success_rate_pct":    stats.SuccessRate,
					"average_duration_ms": stats.AverageDuration.Milliseconds(),
					"operations":          stats.OperationCounts,
					"tool_usage":          stats.ToolUsage,
				},
				"entries":   r.audit.GetRecentEntries(recentAuditLimit),
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}

			return r.jsonContents("audit://recent", payload)
		},
	}
}

// GetResourceTemplates returns resource templates for per-tool lookups
func (r *Registry) GetResourceTemplates() []mcp.ResourceTemplate {
	return []mcp.ResourceTemplate{
		{
			URITemplate: "tool://{name}",
			Name:        "Remediation Tool Definition",
			Description: "Definition of a single remediation tool: keywords, command template, destructiveness. Use catalog://remediation to list valid names.",
			MIMEType:    "application/json",
		},
	}
}

// GetTemplateHandler returns a handler for resource templates
func (r *Registry) GetTemplateHandler() mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI

		var content interface{}

		if matchTemplate(uri, "tool://") {
			name := extractTemplateName(uri, "tool://")
			if tool, ok := r.catalog.Find(name); ok {
				content = tool
			} else {
				content = map[string]interface{}{
					"error":           "Unknown remediation tool",
					"requested":       name,
					"available_tools": r.catalog.Names(),
				}
			}
		} else {
			content = map[string]interface{}{
				"error":               "Unknown template type",
				"available_templates": []string{"tool://{name}"},
			}
		}

		return r.jsonContents(uri, content)
	}
}

func (r *Registry) jsonContents(uri string, payload interface{}) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		r.logger.Error("Failed to marshal resource", zap.String("uri", uri), zap.Error(err))
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}

func matchTemplate(uri, prefix string) bool {
	return len(uri) > len(prefix) && uri[:len(prefix)] == prefix
}

func extractTemplateName(uri, prefix string) string {
	return uri[len(prefix):]
}
