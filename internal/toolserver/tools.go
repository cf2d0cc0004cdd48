package toolserver

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/remedy"
)

const listToolName = "list_remediation_tools"

// remediationTool adapts one catalog entry. Running it renders the entry's
// command for the requested deployment.
type remediationTool struct {
	def              remedy.Tool
	defaultComponent string
	logger           *zap.Logger
}

func newRemediationTool(def remedy.Tool, defaultComponent string, logger *zap.Logger) *remediationTool {
	defaultComponent = remedy.Sanitize(defaultComponent)
	if defaultComponent == "" {
		defaultComponent = "auth-service"
	}
	return &remediationTool{def: def, defaultComponent: defaultComponent, logger: logger}
}

func (t *remediationTool) Name() string {
	return t.def.Name
}

func (t *remediationTool) Description() string {
	return t.def.Description
}

func (t *remediationTool) InputSchema() interface{} {
	properties := map[string]interface{}{
		"service_name": map[string]interface{}{
			"type":        "string",
			"description": "Deployment to act on (e.g. auth-service)",
		},
		"namespace": map[string]interface{}{
			"type":        "string",
			"description": "Kubernetes namespace to target (default: default)",
		},
	}
	if strings.Contains(t.def.CommandTemplate, "{replicas}") {
		properties["replicas"] = map[string]interface{}{
			"type":        "integer",
			"description": "Desired replica count (default: 3)",
			"minimum":     1,
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   []string{"service_name"},
	}
}

func (t *remediationTool) Annotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:           titleFor(t.def.Name),
		ReadOnlyHint:    false,
		DestructiveHint: boolPtr(t.def.Destructive),
		IdempotentHint:  true,
		OpenWorldHint:   boolPtr(false),
	}
}

func (t *remediationTool) Run(_ context.Context, args map[string]interface{}) (interface{}, error) {
	service, err := GetStringParam(args, "service_name", true)
	if err != nil {
		return nil, err
	}
	component := remedy.Sanitize(service)
	if component == "" {
		component = t.defaultComponent
		t.logger.Warn("Service name unusable after sanitization, using default",
			zap.String("tool", t.def.Name),
			zap.String("service_name", service),
			zap.String("default", component),
		)
	}

	namespace, err := GetStringParam(args, "namespace", false)
	if err != nil {
		return nil, err
	}
	replicas, err := GetIntParam(args, "replicas", false)
	if err != nil {
		return nil, err
	}

	result := ExecuteResult{
		Tool:            t.def.Name,
		CommandText:     t.def.Render(component, namespace, replicas),
		TargetComponent: component,
	}
	t.logger.Info("Rendered remediation command",
		zap.String("tool", t.def.Name),
		zap.String("component", component),
	)
	return result, nil
}

// listTool reports the catalog so agents can discover what the server
// executes.
type listTool struct {
	catalog remedy.Catalog
}

func newListTool(catalog remedy.Catalog) *listTool {
	return &listTool{catalog: catalog}
}

func (t *listTool) Name() string {
	return listToolName
}

func (t *listTool) Description() string {
	return "List the remediation tools this server can execute, with their keywords and command templates"
}

func (t *listTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *listTool) Annotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:          "List Remediation Tools",
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(false),
	}
}

func (t *listTool) Run(context.Context, map[string]interface{}) (interface{}, error) {
	return toolList{Tools: t.catalog}, nil
}
