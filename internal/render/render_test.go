package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clarityops/clarity/internal/analysis"
	"github.com/clarityops/clarity/internal/models"
	"github.com/clarityops/clarity/internal/monitor"
	"github.com/clarityops/clarity/internal/session"
)

func sampleReport() *analysis.Report {
	return &analysis.Report{
		GeneratedAt: time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC),
		Sources: []analysis.SourceReport{
			{Source: "api.log", Format: "ndjson", Events: 5},
			{Source: "user.csv", Format: "csv", Events: 2, Dropped: 1},
			{Source: "bad.log", Skipped: true, Reason: "produced no valid events"},
		},
		TotalEvents:     7,
		FirstEvent:      time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		LastEvent:       time.Date(2025, 3, 14, 10, 8, 0, 0, time.UTC),
		SeverityCounts:  map[string]int{"ERROR": 5, "WARN": 2},
		ComponentCounts: map[string]int{"auth-service": 5, "api-service": 2},
		Verdict: models.AnalysisVerdict{
			Summary:              "auth-service degraded by connection pool exhaustion",
			RootCauseDescription: "The database connection pool in auth-service is exhausted.",
			AffectedComponents:   []string{"auth-service"},
			ConfidenceScore:      0.9,
		},
		Command: models.RemediationCommand{
			ToolName:        "restart_service",
			CommandText:     "kubectl rollout restart deployment/auth-service -n default",
			TargetComponent: "auth-service",
		},
		DispatchNote: "suggested only, no dispatcher configured",
	}
}

func TestReportContainsAllSections(t *testing.T) {
	out := Report(sampleReport())

	assert.Contains(t, out, "Sources")
	assert.Contains(t, out, "Timeline")
	assert.Contains(t, out, "Verdict")
	assert.Contains(t, out, "Remediation")

	assert.Contains(t, out, "api.log (ndjson): 5 events")
	assert.Contains(t, out, "user.csv (csv): 2 events, 1 records dropped")
	assert.Contains(t, out, "bad.log skipped: produced no valid events")

	assert.Contains(t, out, "2025-03-14T10:00:00Z .. 2025-03-14T10:08:00Z")
	assert.Contains(t, out, "5 ERROR")
	assert.Contains(t, out, "2 WARN")
	assert.Contains(t, out, "auth-service (5), api-service (2)")

	assert.Contains(t, out, "auth-service degraded by connection pool exhaustion")
	assert.Contains(t, out, "The database connection pool in auth-service is exhausted.")
	assert.Contains(t, out, "0.90")

	assert.Contains(t, out, "kubectl rollout restart deployment/auth-service -n default")
	assert.Contains(t, out, "suggested only, no dispatcher configured")
	assert.NotContains(t, out, "dispatched via tool server")
}

func TestReportDispatchedAndFallbackAnnotations(t *testing.T) {
	r := sampleReport()
	r.Dispatched = true
	r.DispatchNote = "dispatched via tool server"
	r.FallbackUsed = true

	out := Report(r)
	assert.Contains(t, out, "dispatched via tool server")
	assert.Contains(t, out, "degraded: verdict computed locally without AI assistance")
}

func TestReportEmptyTimeline(t *testing.T) {
	r := &analysis.Report{
		Sources: []analysis.SourceReport{{Source: "a.log", Skipped: true, Reason: "no such file"}},
	}
	out := Report(r)
	assert.Contains(t, out, "no events parsed")
	assert.Contains(t, out, "a.log skipped: no such file")
}

func TestReportNil(t *testing.T) {
	assert.Empty(t, Report(nil))
}

func TestComponentLineRanksAndCaps(t *testing.T) {
	line := componentLine(map[string]int{
		"a": 1, "b": 7, "c": 3, "d": 3, "e": 2, "f": 1, "g": 9,
	})
	assert.Equal(t, "g (9), b (7), c (3), d (3), e (2)", line)
}

func TestAlertPanel(t *testing.T) {
	out := Alert(models.Alert{
		Severity:    models.AlertHigh,
		Message:     "error ratio 0.60 (6/10) over trailing window",
		TriggeredAt: time.Date(2025, 3, 14, 10, 5, 0, 0, time.UTC),
		Source:      "api.log",
	})

	assert.Contains(t, out, "High alert")
	assert.Contains(t, out, "error ratio 0.60 (6/10)")
	assert.Contains(t, out, "triggered 2025-03-14T10:05:00Z")
}

func TestMonitorSummaryPanel(t *testing.T) {
	out := MonitorSummary(monitor.Summary{
		Cycles: 12,
		Alerts: []models.Alert{
			{Message: "ratio rose", TriggeredAt: time.Date(2025, 3, 14, 10, 5, 0, 0, time.UTC)},
		},
		State: monitor.StateAlerted,
	})

	assert.Contains(t, out, "Monitor Session")
	assert.Contains(t, out, "Cycles: 12")
	assert.Contains(t, out, "Alerts: 1")
	assert.Contains(t, out, "ALERTED")
	assert.Contains(t, out, "ratio rose")
}

func TestAnswerPanel(t *testing.T) {
	out := Answer(session.Exchange{Answer: "The affected components are auth-service."})
	assert.Contains(t, out, "The affected components are auth-service.")
	assert.NotContains(t, out, "offline answer")

	out = Answer(session.Exchange{Answer: "No root cause was determined in this analysis.", Fallback: true})
	assert.Contains(t, out, "offline answer: the AI oracle was unreachable")
}
