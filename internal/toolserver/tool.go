// Package toolserver exposes the remediation catalog two ways: as MCP tools
// over stdio for AI agents, and as a small HTTP API consumed by the analyze
// pipeline's dispatcher. Tools render kubectl commands; they never contact a
// cluster themselves.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/remedy"
)

// Tool is one executable entry of the server. Run returns the typed payload;
// the MCP and HTTP surfaces each apply their own presentation.
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// InputSchema returns the JSON Schema for the tool's input parameters
	InputSchema() interface{}

	// Annotations returns behavior hints for LLMs
	Annotations() *mcp.ToolAnnotations

	// Run executes the tool with the given arguments
	Run(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ExecuteResult is the payload of a tool execution. Its field names are the
// wire contract the dispatch client decodes.
type ExecuteResult struct {
	Tool            string `json:"tool"`
	CommandText     string `json:"command_text"`
	TargetComponent string `json:"target_component"`
}

// toolList is the catalog envelope served by GET /tools and by the
// list_remediation_tools tool.
type toolList struct {
	Tools remedy.Catalog `json:"tools"`
}

var titleCaser = cases.Title(language.English)

func titleFor(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

func boolPtr(b bool) *bool {
	return &b
}

// jsonResult renders a payload as pretty-printed JSON text content.
func jsonResult(payload interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, clerrors.NewInternalError(fmt.Sprintf("failed to encode tool result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

// GetStringParam safely gets a string parameter from arguments
func GetStringParam(args map[string]interface{}, key string, required bool) (string, error) {
	val, exists := args[key]
	if !exists {
		if required {
			return "", clerrors.NewMissingParameter(key)
		}
		return "", nil
	}
	str, ok := val.(string)
	if !ok {
		return "", clerrors.NewInvalidInput(fmt.Sprintf("parameter %s must be a string", key))
	}
	return str, nil
}

// GetIntParam safely gets an integer parameter from arguments. JSON numbers
// arrive as float64.
func GetIntParam(args map[string]interface{}, key string, required bool) (int, error) {
	val, exists := args[key]
	if !exists {
		if required {
			return 0, clerrors.NewMissingParameter(key)
		}
		return 0, nil
	}
	switch v := val.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, clerrors.NewInvalidInput(fmt.Sprintf("parameter %s must be a number", key))
	}
}
