// Package remedy holds the remediation tool catalog and the pure selector
// that matches an analysis verdict to exactly one corrective command.
package remedy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	clerrors "github.com/clarityops/clarity/internal/errors"
)

// FallbackToolName is the designated no-op entry chosen when no catalog
// keyword matches the verdict.
const FallbackToolName = "manual_review"

// KnownServices are the deployments remediation commands may target when the
// verdict itself names no component.
var KnownServices = []string{
	"auth-service",
	"api-service",
	"user-service",
	"payment-service",
}

// Tool is one remediation catalog entry. Keywords are the diagnosis signals
// the entry applies to; CommandTemplate carries {component}, {namespace} and
// {replicas} placeholders.
type Tool struct {
	Name            string   `json:"name" yaml:"name"`
	Description     string   `json:"description" yaml:"description"`
	Keywords        []string `json:"keywords" yaml:"keywords"`
	CommandTemplate string   `json:"command_template" yaml:"command_template"`
	Destructive     bool     `json:"destructive" yaml:"destructive"`
}

// Render substitutes the template placeholders. The component is used as
// given and must already be sanitized; an empty namespace means "default"
// and non-positive replicas become 3.
func (t Tool) Render(component, namespace string, replicas int) string {
	if replicas <= 0 {
		replicas = 3
	}
	namespace = Sanitize(namespace)
	if namespace == "" {
		namespace = "default"
	}
	return strings.NewReplacer(
		"{component}", component,
		"{namespace}", namespace,
		"{replicas}", strconv.Itoa(replicas),
	).Replace(t.CommandTemplate)
}

// Catalog is an ordered tool list. Declaration order is load-bearing: it
// breaks selection ties.
type Catalog []Tool

var manualReviewTool = Tool{
	Name:            FallbackToolName,
	Description:     "No safe automated action applies; escalate to a human operator",
	CommandTemplate: "echo 'manual review required for {component}'",
}

var defaultTools = Catalog{
	{
		Name:            "suggest_rollback",
		Description:     "Roll the deployment back to its previous revision",
		Keywords:        []string{"deployment", "rollback", "regression", "release", "version", "config", "configuration", "deploy"},
		CommandTemplate: "kubectl rollout undo deployment/{component} -n {namespace}",
		Destructive:     true,
	},
	{
		Name:            "restart_service",
		Description:     "Restart the service's pods to clear exhausted state",
		Keywords:        []string{"exhausted", "pool", "connection", "leak", "memory", "restart", "hung", "deadlock", "timeout"},
		CommandTemplate: "kubectl rollout restart deployment/{component} -n {namespace}",
	},
	{
		Name:            "scale_service",
		Description:     "Scale the deployment out to absorb load",
		Keywords:        []string{"overload", "capacity", "load", "saturation", "throughput", "scale", "traffic", "spike"},
		CommandTemplate: "kubectl scale deployment/{component} --replicas={replicas} -n {namespace}",
	},
	{
		Name:            "validate_health",
		Description:     "Inspect the deployment's rollout and probe status",
		Keywords:        []string{"health", "degraded", "unreachable", "availability", "probe", "crash"},
		CommandTemplate: "kubectl get deployment/{component} -n {namespace} -o wide",
	},
	manualReviewTool,
}

// DefaultCatalog returns a fresh copy of the built-in tool set, with the
// manual_review fallback last.
func DefaultCatalog() Catalog {
	catalog := make(Catalog, len(defaultTools))
	copy(catalog, defaultTools)
	return catalog
}

// Find returns the entry with the given name.
func (c Catalog) Find(name string) (Tool, bool) {
	for _, tool := range c {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

// Names returns the tool names in declaration order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, tool := range c {
		names[i] = tool.Name
	}
	return names
}

// LoadCatalog reads a YAML tool list from path. An empty path returns the
// built-in default catalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, clerrors.NewInvalidInput(fmt.Sprintf("remediation catalog %s: %v", path, err)).WithCause(err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, clerrors.NewInvalidInput(fmt.Sprintf("remediation catalog %s: %v", path, err)).WithCause(err)
	}
	if len(catalog) == 0 {
		return nil, clerrors.NewInvalidInput(fmt.Sprintf("remediation catalog %s: no tools defined", path))
	}

	seen := make(map[string]bool, len(catalog))
	for i, tool := range catalog {
		switch {
		case tool.Name == "":
			return nil, clerrors.NewInvalidInput(fmt.Sprintf("remediation catalog %s: tool %d has no name", path, i+1))
		case tool.CommandTemplate == "":
			return nil, clerrors.NewInvalidInput(fmt.Sprintf("remediation catalog %s: tool %s has no command template", path, tool.Name))
		case seen[tool.Name]:
			return nil, clerrors.NewInvalidInput(fmt.Sprintf("remediation catalog %s: duplicate tool %s", path, tool.Name))
		}
		seen[tool.Name] = true
	}
	return catalog, nil
}

// Sanitize reduces a substitution value to lowercase alphanumerics and
// hyphens so command templates never receive shell metacharacters.
func Sanitize(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
