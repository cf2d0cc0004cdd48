package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clarityops/clarity/internal/models"
)

const (
	// maxCondensedEvents bounds how many recent events the oracle prompt
	// carries; older events are represented by the count header only.
	maxCondensedEvents = 20

	// maxMessageRunes bounds each condensed message, counted in runes so
	// multi-byte log text is never split mid-character.
	maxMessageRunes = 100

	// fallbackConfidence is the score on rule-based verdicts. It stays
	// below every severity band so a counted guess never reads as a
	// confident diagnosis.
	fallbackConfidence = 0.2

	maxFallbackComponents = 3
)

var severityOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityError,
	models.SeverityWarn,
	models.SeverityInfo,
	models.SeverityDebug,
}

// Condense renders a timeline as bounded plain text for the oracle prompt: a
// count header covering every event, then the most recent events one per
// line with truncated messages. Non-positive maxEvents or maxRunes fall back
// to the production bounds.
func Condense(tl models.Timeline, maxEvents, maxRunes int) string {
	if maxEvents <= 0 {
		maxEvents = maxCondensedEvents
	}
	if maxRunes <= 0 {
		maxRunes = maxMessageRunes
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TOTAL EVENTS: %d\n", tl.Len())
	if first, last := tl.Span(); tl.Len() > 0 {
		fmt.Fprintf(&b, "TIME SPAN: %s .. %s\n",
			first.UTC().Format(time.RFC3339), last.UTC().Format(time.RFC3339))
	}

	b.WriteString("SEVERITY COUNTS:")
	sevCounts := tl.CountBySeverity()
	for _, sev := range severityOrder {
		if n := sevCounts[sev.String()]; n > 0 {
			fmt.Fprintf(&b, " %s=%d", sev.String(), n)
		}
	}
	b.WriteString("\nCOMPONENT COUNTS:")
	for _, cc := range rankComponents(tl.CountByComponent()) {
		fmt.Fprintf(&b, " %s=%d", cc.name, cc.count)
	}
	b.WriteString("\n")

	events := tl.Events
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	fmt.Fprintf(&b, "RECENT EVENTS (%d of %d):\n", len(events), tl.Len())
	for i := range events {
		ev := &events[i]
		component := ev.Component
		if component == "" {
			component = "-"
		}
		fmt.Fprintf(&b, "%s [%s] %s: %s\n",
			ev.Timestamp.UTC().Format(time.RFC3339), ev.Severity, component,
			truncateRunes(flatten(ev.FullMessage()), maxRunes))
	}
	return b.String()
}

// FallbackVerdict derives a verdict from local event counts alone, used
// whenever the oracle is unconfigured or fails mid-run.
func FallbackVerdict(tl models.Timeline) models.AnalysisVerdict {
	total := tl.Len()
	errorCounts := make(map[string]int)
	errorEvents := 0
	for i := range tl.Events {
		if !tl.Events[i].Severity.IsErrorClass() {
			continue
		}
		errorEvents++
		if c := tl.Events[i].Component; c != "" {
			errorCounts[c]++
		}
	}

	verdict := models.AnalysisVerdict{
		Summary: fmt.Sprintf("Local fallback analysis: %d error-class events in %d total events.",
			errorEvents, total),
		ConfidenceScore: fallbackConfidence,
	}

	ranked := rankComponents(errorCounts)
	if len(ranked) == 0 {
		ranked = rankComponents(tl.CountByComponent())
	}
	for i, cc := range ranked {
		if i == maxFallbackComponents {
			break
		}
		verdict.AffectedComponents = append(verdict.AffectedComponents, cc.name)
	}

	var rootCause string
	switch {
	case total == 0:
		rootCause = "no events were parsed from the declared sources"
	case len(errorCounts) > 0:
		top := rankComponents(errorCounts)[0]
		rootCause = fmt.Sprintf("component %s carries the most error-class events (%d of %d)",
			top.name, top.count, errorEvents)
	case errorEvents > 0:
		rootCause = fmt.Sprintf("%d error-class events found, but none carry a component", errorEvents)
	default:
		rootCause = "no error-class events found in the timeline"
	}
	verdict.RootCauseDescription = fmt.Sprintf(
		"Derived from local event counts without AI assistance: %s.", rootCause)
	return verdict
}

type componentCount struct {
	name  string
	count int
}

// rankComponents orders components by descending count with ties broken by
// name, keeping condensed output and fallback verdicts deterministic.
func rankComponents(counts map[string]int) []componentCount {
	ranked := make([]componentCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, componentCount{name: name, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})
	return ranked
}

var newlineFlattener = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	return newlineFlattener.Replace(s)
}

// truncateRunes caps s at max runes, spending the final rune on an ellipsis
// when anything was cut.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
