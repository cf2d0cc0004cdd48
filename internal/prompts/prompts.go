// Package prompts provides pre-built prompts for common incident workflows.
// They guide an MCP client from a fresh alert or log anomaly through analysis
// to a rendered remediation command.
package prompts

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// PromptDefinition represents a prompt with its metadata and handler
type PromptDefinition struct {
	// Prompt is the MCP prompt metadata
	Prompt *mcp.Prompt
	// Handler is the function that generates the prompt content
	Handler mcp.PromptHandler
}

// Registry holds all registered prompts
type Registry struct {
	logger  *zap.Logger
	prompts []*PromptDefinition
}

// NewRegistry creates a new prompt registry with all available prompts
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		logger: logger,
	}
	r.registerPrompts()
	return r
}

// GetPrompts returns all registered prompt definitions
func (r *Registry) GetPrompts() []*PromptDefinition {
	return r.prompts
}

// registerPrompts registers all available prompts
func (r *Registry) registerPrompts() {
	r.prompts = []*PromptDefinition{
		r.investigateIncidentPrompt(),
		r.triageAlertPrompt(),
		r.remediationGuidancePrompt(),
	}
}

// Helper to create a prompt result with user role
func createPromptResult(description, content string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: content,
				},
			},
		},
	}
}

// getStringArg safely extracts a string argument with a default value
func getStringArg(args map[string]string, key, defaultVal string) string {
	if val, ok := args[key]; ok && val != "" {
		return val
	}
	return defaultVal
}

// investigateIncidentPrompt creates the "investigate_incident" prompt definition
func (r *Registry) investigateIncidentPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "investigate_incident",
			Title:       "Investigate an Incident",
			Description: "Guide through investigating an incident from raw logs to a root cause verdict",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "service_name",
					Description: "Service suspected to be involved (e.g. 'auth-service')",
					Required:    false,
				},
				{
					Name:        "time_range",
					Description: "Time range to investigate (e.g. '1h', '24h')",
					Required:    false,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			serviceName := getStringArg(req.Params.Arguments, "service_name", "the affected service")
			timeRange := getStringArg(req.Params.Arguments, "time_range", "1h")

			content := fmt.Sprintf(`Let's investigate the incident around %s (last %s). The workflow:

1. **Build the unified timeline** by running the analyzer over every relevant log source:
   clarity analyze --source app.ndjson:structured --source lb.csv:table --source legacy.log:freetext
   Structured and table sources usually carry component fields; free-text fills the gaps.

2. **Read the verdict panel.** It holds the summary, the root cause description,
   the affected components, and a confidence score between 0.0 and 1.0.
   Treat anything below 0.5 as a hypothesis, not a conclusion.

3. **Match the root cause to a remediation.** Run list_remediation_tools to see
   what is available, then pick by symptom:
   - deployment or config regression: suggest_rollback
   - exhaustion, leaks, hangs: restart_service
   - overload or traffic spikes: scale_service
   - unclear degradation: validate_health first

4. **Render the command** by calling the chosen tool with service_name set to
   the affected component. Review the kubectl command before anyone runs it.

If no tool fits, manual_review is always available as the safe default.`, serviceName, timeRange)

			return createPromptResult("Incident investigation workflow", content), nil
		},
	}
}

// triageAlertPrompt creates the "triage_alert" prompt definition
func (r *Registry) triageAlertPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "triage_alert",
			Title:       "Triage a Monitor Alert",
			Description: "Guide through triaging an alert raised by the error-ratio monitor",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "severity",
					Description: "Alert severity: 'critical', 'high', or 'warning'",
					Required:    false,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			severity := getStringArg(req.Params.Arguments, "severity", "critical")

			content := fmt.Sprintf(`A %s alert fired from the error-ratio monitor. Triage steps:

1. **Read the alert's metric snapshot.** It carries the window's total events,
   error count, error ratio, and the ratio delta that tripped the threshold.
   Severity bands: ratio >= 0.8 is critical, >= 0.5 high, >= 0.3 warning.

2. **Confirm it is not a burst artifact.** A near-empty window with one error
   produces a high ratio. Check the total event count before acting.

3. **Run a full analysis** over the monitored source plus any neighbors:
   clarity analyze --source <monitored-source> --dispatch
   The verdict names the affected components and suggests a remediation.

4. **Escalate by severity.** Critical: act on the suggested command now.
   High: validate first with validate_health, then remediate.
   Warning: watch the next monitor cycles; the alert debounces and will
   re-fire only after the ratio recovers and rises again.`, severity)

			return createPromptResult("Alert triage workflow", content), nil
		},
	}
}

// remediationGuidancePrompt creates the "remediation_guidance" prompt definition
func (r *Registry) remediationGuidancePrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "remediation_guidance",
			Title:       "Choose a Remediation",
			Description: "Help choose the right remediation tool for a diagnosed service",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "service_name",
					Description: "Service the remediation targets",
					Required:    true,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			serviceName := getStringArg(req.Params.Arguments, "service_name", "your-service")

			content := fmt.Sprintf(`Let's choose a remediation for %s. Map the diagnosis to a tool:

- **Bad release or config change** (regression after a deploy):
  suggest_rollback with service_name "%s". This renders a kubectl rollout undo;
  it is the only destructive tool in the catalog, so double-check the target.

- **Resource exhaustion** (connection pools, memory leaks, deadlocks):
  restart_service with service_name "%s". Safe and idempotent.

- **Load beyond capacity** (saturation, traffic spikes):
  scale_service with service_name "%s" and a replicas count. Defaults to 3.

- **Uncertain diagnosis**: validate_health with service_name "%s" first; it is
  read-only and shows the deployment state before you change anything.

Every tool accepts an optional namespace (defaults to "default"). The rendered
command is returned as text; nothing executes until a human runs it.`,
				serviceName, serviceName, serviceName, serviceName, serviceName)

			return createPromptResult("Remediation selection guidance", content), nil
		},
	}
}
