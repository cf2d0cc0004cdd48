package remedy

import (
	"regexp"
	"strings"

	"github.com/clarityops/clarity/internal/models"
)

// wordPattern extracts scoring tokens: lowercase alphanumeric runs.
var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// Selector resolves an analysis verdict to one remediation command. It
// performs no I/O and holds no mutable state: identical inputs always yield
// the identical command. Zero fields take the production defaults.
type Selector struct {
	// DefaultComponent is the target when the verdict names no usable
	// component and no known service appears in the diagnosis text.
	DefaultComponent string

	// Namespace substitutes {namespace} in command templates.
	Namespace string

	// Replicas substitutes {replicas} in scale templates.
	Replicas int
}

// NewSelector creates a selector with the production defaults.
func NewSelector(defaultComponent string) *Selector {
	if defaultComponent == "" {
		defaultComponent = "auth-service"
	}
	return &Selector{
		DefaultComponent: defaultComponent,
		Namespace:        "default",
		Replicas:         3,
	}
}

// Select scores every catalog entry by keyword overlap with the verdict's
// root cause description and affected components, and returns the winning
// command. Ties keep the earliest catalog entry. A zero best score falls
// back to manual review; the fallback is never a destructive entry.
func (s *Selector) Select(verdict models.AnalysisVerdict, catalog Catalog) models.RemediationCommand {
	tokens := tokenize(verdict.RootCauseDescription + " " + strings.Join(verdict.AffectedComponents, " "))

	best := -1
	bestScore := 0
	for i, tool := range catalog {
		score := 0
		for _, keyword := range tool.Keywords {
			if tokens[strings.ToLower(keyword)] {
				score++
			}
		}
		if score > bestScore {
			best = i
			bestScore = score
		}
	}

	tool := s.fallback(catalog)
	if best >= 0 {
		tool = catalog[best]
	}

	component := s.resolveComponent(verdict)
	return models.RemediationCommand{
		ToolName:        tool.Name,
		CommandText:     tool.Render(component, s.Namespace, s.Replicas),
		TargetComponent: component,
	}
}

// fallback returns the catalog's manual_review entry when it is safe to use,
// or the built-in one.
func (s *Selector) fallback(catalog Catalog) Tool {
	if tool, ok := catalog.Find(FallbackToolName); ok && !tool.Destructive {
		return tool
	}
	return manualReviewTool
}

// resolveComponent picks the command target: the verdict's primary component,
// else a known service named in the diagnosis text, else the default.
func (s *Selector) resolveComponent(verdict models.AnalysisVerdict) string {
	if c := Sanitize(verdict.PrimaryComponent("")); c != "" {
		return c
	}

	text := strings.ToLower(verdict.Summary + " " + verdict.RootCauseDescription)
	for _, svc := range KnownServices {
		if strings.Contains(text, svc) {
			return svc
		}
	}

	if c := Sanitize(s.DefaultComponent); c != "" {
		return c
	}
	return "auth-service"
}

// tokenize lowercases the text and returns its alphanumeric runs as a set.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[word] = true
	}
	return tokens
}
