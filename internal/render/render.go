// Package render draws terminal panels for analysis reports, monitor alerts
// and chat answers. Every function is a pure string builder; callers decide
// where the output goes.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/clarityops/clarity/internal/analysis"
	"github.com/clarityops/clarity/internal/models"
	"github.com/clarityops/clarity/internal/monitor"
	"github.com/clarityops/clarity/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7DCE13"))
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Bold(true)
	faintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	danger     = lipgloss.Color("#FF5F87")
	amber      = lipgloss.Color("#FFAF00")
	green      = lipgloss.Color("#5FD7AF")

	dangerStyle = lipgloss.NewStyle().Foreground(danger)
	warnStyle   = lipgloss.NewStyle().Foreground(amber)
	goodStyle   = lipgloss.NewStyle().Foreground(green)

	titleCaser = cases.Title(language.English)
)

// severityOrder fixes the display order of severity counts.
var severityOrder = []string{"CRITICAL", "ERROR", "WARN", "INFO", "DEBUG"}

// maxComponentsShown bounds the component count line.
const maxComponentsShown = 5

// Report lays out a full analysis report as stacked panels.
func Report(r *analysis.Report) string {
	if r == nil {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		panel("sources", sourceLines(r.Sources)),
		panel("timeline", timelineLines(r)),
		panel("verdict", verdictLines(r)),
		panel("remediation", remediationLines(r)),
	)
}

// Alert draws one fired alert, bordered in its severity color.
func Alert(a models.Alert) string {
	color := alertColor(a.Severity)
	heading := lipgloss.NewStyle().Bold(true).Foreground(color).
		Render(titleCaser.String(strings.ToLower(string(a.Severity))) + " alert")
	lines := []string{heading, a.Message}
	if !a.TriggeredAt.IsZero() {
		lines = append(lines, faintStyle.Render("triggered "+a.TriggeredAt.UTC().Format(time.RFC3339)))
	}
	return panelStyle.BorderForeground(color).Render(strings.Join(lines, "\n"))
}

// MonitorSummary draws the end-of-session totals.
func MonitorSummary(s monitor.Summary) string {
	lines := []string{
		labelStyle.Render("Cycles: ") + fmt.Sprintf("%d", s.Cycles),
		labelStyle.Render("Alerts: ") + fmt.Sprintf("%d", len(s.Alerts)),
		labelStyle.Render("State: ") + string(s.State),
	}
	for _, a := range s.Alerts {
		lines = append(lines, faintStyle.Render(fmt.Sprintf("%s %s", a.TriggeredAt.UTC().Format(time.RFC3339), a.Message)))
	}
	return panel("monitor session", strings.Join(lines, "\n"))
}

// Answer draws one chat exchange's answer.
func Answer(e session.Exchange) string {
	lines := []string{e.Answer}
	if e.Fallback {
		lines = append(lines, "", warnStyle.Render("offline answer: the AI oracle was unreachable"))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func panel(title, body string) string {
	heading := titleStyle.Render(titleCaser.String(title))
	return panelStyle.Render(heading + "\n" + body)
}

func sourceLines(sources []analysis.SourceReport) string {
	if len(sources) == 0 {
		return faintStyle.Render("no sources declared")
	}
	lines := make([]string, 0, len(sources))
	for _, src := range sources {
		switch {
		case src.Skipped:
			lines = append(lines, dangerStyle.Render("x ")+fmt.Sprintf("%s skipped: %s", src.Source, src.Reason))
		case src.Dropped > 0:
			lines = append(lines, warnStyle.Render("! ")+fmt.Sprintf("%s (%s): %d events, %d records dropped", src.Source, src.Format, src.Events, src.Dropped))
		default:
			lines = append(lines, goodStyle.Render("+ ")+fmt.Sprintf("%s (%s): %d events", src.Source, src.Format, src.Events))
		}
	}
	return strings.Join(lines, "\n")
}

func timelineLines(r *analysis.Report) string {
	if r.TotalEvents == 0 {
		return faintStyle.Render("no events parsed")
	}
	lines := []string{
		labelStyle.Render("Events: ") + fmt.Sprintf("%d", r.TotalEvents),
		labelStyle.Render("Span: ") + fmt.Sprintf("%s .. %s",
			r.FirstEvent.UTC().Format(time.RFC3339), r.LastEvent.UTC().Format(time.RFC3339)),
	}
	if line := severityLine(r.SeverityCounts); line != "" {
		lines = append(lines, labelStyle.Render("Severity: ")+line)
	}
	if line := componentLine(r.ComponentCounts); line != "" {
		lines = append(lines, labelStyle.Render("Components: ")+line)
	}
	return strings.Join(lines, "\n")
}

func verdictLines(r *analysis.Report) string {
	v := r.Verdict
	lines := []string{
		v.Summary,
		"",
		labelStyle.Render("Root cause: ") + v.RootCauseDescription,
	}
	if len(v.AffectedComponents) > 0 {
		lines = append(lines, labelStyle.Render("Affected: ")+strings.Join(v.AffectedComponents, ", "))
	}
	lines = append(lines, labelStyle.Render("Confidence: ")+confidenceBadge(v.ConfidenceScore))
	if r.FallbackUsed {
		lines = append(lines, warnStyle.Render("degraded: verdict computed locally without AI assistance"))
	}
	return strings.Join(lines, "\n")
}

func remediationLines(r *analysis.Report) string {
	cmd := r.Command
	lines := []string{
		labelStyle.Render("Tool: ") + cmd.ToolName,
		labelStyle.Render("Target: ") + cmd.TargetComponent,
		labelStyle.Render("Command: ") + goodStyle.Render(cmd.CommandText),
	}
	switch {
	case r.Dispatched:
		lines = append(lines, goodStyle.Render("dispatched via tool server"))
	case r.DispatchNote != "":
		lines = append(lines, faintStyle.Render(r.DispatchNote))
	}
	return strings.Join(lines, "\n")
}

func severityLine(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, name := range severityOrder {
		n := counts[name]
		if n == 0 {
			continue
		}
		parts = append(parts, severityStyle(name).Render(fmt.Sprintf("%d %s", n, name)))
	}
	return strings.Join(parts, ", ")
}

func componentLine(counts map[string]int) string {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > maxComponentsShown {
		entries = entries[:maxComponentsShown]
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s (%d)", e.name, e.count)
	}
	return strings.Join(parts, ", ")
}

func severityStyle(name string) lipgloss.Style {
	switch name {
	case "CRITICAL", "ERROR":
		return dangerStyle
	case "WARN", "WARNING":
		return warnStyle
	default:
		return faintStyle
	}
}

func confidenceBadge(score float64) string {
	text := fmt.Sprintf("%.2f", score)
	switch {
	case score >= 0.8:
		return goodStyle.Render(text)
	case score >= 0.5:
		return warnStyle.Render(text)
	default:
		return dangerStyle.Render(text)
	}
}

func alertColor(s models.AlertSeverity) lipgloss.Color {
	switch s {
	case models.AlertCritical, models.AlertHigh:
		return danger
	case models.AlertWarning:
		return amber
	default:
		return green
	}
}
