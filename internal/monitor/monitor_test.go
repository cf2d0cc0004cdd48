package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/models"
	"github.com/clarityops/clarity/internal/parser"
)

func TestSeverityBands(t *testing.T) {
	tests := []struct {
		ratio float64
		want  models.AlertSeverity
	}{
		{0.0, models.AlertInfo},
		{0.29, models.AlertInfo},
		{0.3, models.AlertWarning},
		{0.49, models.AlertWarning},
		{0.5, models.AlertHigh},
		{0.79, models.AlertHigh},
		{0.8, models.AlertCritical},
		{1.0, models.AlertCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFor(tt.ratio), "ratio %.2f", tt.ratio)
	}
}

func TestDebouncerFiresOncePerExcursion(t *testing.T) {
	d := NewDebouncer(0.5, 0.3, 0.05)

	ratios := []float64{0.1, 0.6, 0.7, 0.6, 0.2, 0.6}

	var fires []int
	var severities []models.AlertSeverity
	for i, ratio := range ratios {
		severity, fired := d.Observe(ratio)
		if fired {
			fires = append(fires, i)
			severities = append(severities, severity)
		}
	}

	require.Equal(t, []int{1, 5}, fires,
		"one alert per excursion, re-armed only after recovery")
	assert.Equal(t, []models.AlertSeverity{models.AlertHigh, models.AlertHigh}, severities)
}

func TestDebouncerEscalatesDuringExcursion(t *testing.T) {
	d := NewDebouncer(0.5, 0.3, 0.05)

	severity, fired := d.Observe(0.6)
	require.True(t, fired)
	assert.Equal(t, models.AlertHigh, severity)

	severity, fired = d.Observe(0.85)
	require.True(t, fired, "strictly higher band escalates without recovery")
	assert.Equal(t, models.AlertCritical, severity)

	_, fired = d.Observe(0.9)
	assert.False(t, fired, "same band stays suppressed")
}

func TestDebouncerRequiresRisingDelta(t *testing.T) {
	d := NewDebouncer(0.5, 0.3, 0.05)

	_, fired := d.Observe(0.48)
	require.False(t, fired, "below rise threshold")

	_, fired = d.Observe(0.52)
	require.False(t, fired, "above threshold but rise too small")

	severity, fired := d.Observe(0.6)
	require.True(t, fired)
	assert.Equal(t, models.AlertHigh, severity)
}

func TestDebouncerRiseThresholdIsStrict(t *testing.T) {
	d := NewDebouncer(0.5, 0.3, 0.05)

	severity, fired := d.Observe(0.5)
	assert.False(t, fired, "ratio equal to the threshold does not fire")
	assert.Equal(t, models.AlertHigh, severity, "band edges stay inclusive")
}

func TestDebouncerHoldsThroughShallowDip(t *testing.T) {
	d := NewDebouncer(0.5, 0.3, 0.05)

	_, fired := d.Observe(0.6)
	require.True(t, fired)

	// Dips to warning territory but never below recovery: still suppressed.
	_, fired = d.Observe(0.35)
	require.False(t, fired)
	assert.True(t, d.Suppressed())

	_, fired = d.Observe(0.7)
	assert.False(t, fired, "no re-fire without full recovery")
}

func TestDebouncerDefaults(t *testing.T) {
	d := NewDebouncer(0, 0, 0)

	severity, fired := d.Observe(0.6)
	require.True(t, fired)
	assert.Equal(t, models.AlertHigh, severity)
}

// ndjson renders count records as one-per-line JSON with strictly increasing
// timestamps, seq keeping them increasing across successive writes.
func ndjson(seq *int, count int, level string) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		fmt.Fprintf(&b, "{\"timestamp\": \"2024-01-15 10:%02d:%02d\", \"level\": %q, \"service\": \"auth-service\", \"message\": \"event %d\"}\n",
			*seq/60, *seq%60, level, *seq)
		*seq++
	}
	return b.String()
}

func newTestMonitor(t *testing.T, opts Options) *Monitor {
	t.Helper()
	return New(opts, parser.New(zap.NewNop()), zap.NewNop(), nil, nil)
}

func TestMonitorCycleAppendsOnlyNewEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.ndjson")
	seq := 0
	content := ndjson(&seq, 2, "info")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	m := newTestMonitor(t, Options{Source: models.Source{Path: path, Format: models.FormatAuto}})

	alert, err := m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Equal(t, 2, m.Timeline().Len())
	assert.Equal(t, StateScanning, m.State())

	// Unchanged content contributes nothing on the next cycle.
	alert, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Equal(t, 2, m.Timeline().Len())

	content += ndjson(&seq, 2, "error")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	alert, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, alert, "ratio 0.5 does not strictly exceed the rise threshold")
	assert.Equal(t, 4, m.Timeline().Len())
	assert.Equal(t, 3, m.Summary().Cycles)
}

func TestMonitorAlertLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.ndjson")
	seq := 0
	content := ndjson(&seq, 1, "info")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	var delivered []models.Alert
	m := newTestMonitor(t, Options{
		Source:  models.Source{Path: path, Format: models.FormatAuto},
		OnAlert: func(a models.Alert) { delivered = append(delivered, a) },
	})

	// Calm baseline.
	alert, err := m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, alert)

	// Errors arrive: 3 of 4 events error-class, sharp rise.
	content += ndjson(&seq, 3, "error")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	alert, err = m.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertHigh, alert.Severity)
	assert.Equal(t, 4, alert.Window.Total)
	assert.Equal(t, 3, alert.Window.ErrorCount)
	assert.Equal(t, "app.ndjson", alert.Source)
	assert.Equal(t, StateAlerted, m.State())

	// Same content again: still elevated, no second alert.
	alert, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Equal(t, StateAlerted, m.State())

	// Healthy traffic dilutes the ratio below recovery.
	content += ndjson(&seq, 16, "info")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	alert, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Equal(t, StateScanning, m.State(), "recovery re-arms the session")

	// A second excursion fires again.
	content += ndjson(&seq, 25, "error")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	alert, err = m.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertHigh, alert.Severity)

	summary := m.Summary()
	assert.Equal(t, 5, summary.Cycles)
	require.Len(t, summary.Alerts, 2)
	require.Len(t, delivered, 2)
	assert.Equal(t, summary.Alerts, delivered)
}

func TestMonitorWindowLimitsMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.ndjson")

	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "{\"timestamp\": \"2024-01-15 10:00:%02d\", \"level\": \"info\", \"message\": \"old %d\"}\n", i, i)
	}
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "{\"timestamp\": \"2024-01-15 10:09:%02d\", \"level\": \"error\", \"message\": \"recent %d\"}\n", i, i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	m := newTestMonitor(t, Options{
		Source: models.Source{Path: path, Format: models.FormatAuto},
		Window: 5 * time.Minute,
	})
	m.now = func() time.Time { return time.Date(2024, 1, 15, 10, 10, 0, 0, time.UTC) }

	alert, err := m.Cycle(context.Background())
	require.NoError(t, err)

	require.NotNil(t, alert, "window sees only the recent errors")
	assert.Equal(t, models.AlertCritical, alert.Severity)
	assert.Equal(t, 5, alert.Window.Total)
	assert.Equal(t, 5, alert.Window.ErrorCount)
	assert.Equal(t, 1.0, alert.Window.ErrorRatio)
	assert.True(t, alert.Window.From.Equal(time.Date(2024, 1, 15, 10, 9, 0, 0, time.UTC)))
	assert.True(t, alert.Window.To.Equal(time.Date(2024, 1, 15, 10, 9, 4, 0, time.UTC)))
	assert.Equal(t, 15, m.Timeline().Len(), "cumulative timeline keeps everything")
}

func TestMonitorMissingSourceIsRecoverable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.ndjson")

	m := newTestMonitor(t, Options{Source: models.Source{Path: path, Format: models.FormatAuto}})

	alert, err := m.Cycle(context.Background())
	require.NoError(t, err, "an absent source is not fatal to the session")
	assert.Nil(t, alert)
	assert.Equal(t, 0, m.Timeline().Len())

	seq := 0
	require.NoError(t, os.WriteFile(path, []byte(ndjson(&seq, 2, "info")), 0o600))

	_, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, m.Timeline().Len())
	assert.Equal(t, 2, m.Summary().Cycles)
}

func TestMonitorTruncatedSourceTreatedAsRotated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.ndjson")
	seq := 0
	require.NoError(t, os.WriteFile(path, []byte(ndjson(&seq, 4, "info")), 0o600))

	m := newTestMonitor(t, Options{Source: models.Source{Path: path, Format: models.FormatAuto}})

	_, err := m.Cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, m.Timeline().Len())

	require.NoError(t, os.WriteFile(path, []byte(ndjson(&seq, 2, "info")), 0o600))

	_, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, m.Timeline().Len(), "rotated content is consumed from the top")
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.ndjson")
	seq := 0
	require.NoError(t, os.WriteFile(path, []byte(ndjson(&seq, 1, "info")), 0o600))

	m := newTestMonitor(t, Options{
		Source:   models.Source{Path: path, Format: models.FormatAuto},
		Interval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	summary, err := m.Run(ctx)
	require.NoError(t, err, "cancellation is a clean stop")
	assert.GreaterOrEqual(t, summary.Cycles, 1)
	assert.Empty(t, summary.Alerts)
}
