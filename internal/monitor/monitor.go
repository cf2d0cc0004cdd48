// Package monitor implements the proactive trend monitor: a polling loop
// that re-reads a log source, grows a cumulative session timeline, and
// raises debounced alerts when the windowed error ratio crosses a rising
// threshold.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/audit"
	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/metrics"
	"github.com/clarityops/clarity/internal/models"
	"github.com/clarityops/clarity/internal/parser"
	"github.com/clarityops/clarity/internal/timeline"
)

// State names the monitor's position in its lifecycle.
type State string

// Monitor states. A session moves Idle → Scanning on its first cycle and
// Scanning ↔ Alerted as excursions start and recover.
const (
	StateIdle     State = "IDLE"
	StateScanning State = "SCANNING"
	StateAlerted  State = "ALERTED"
)

// Options configures one monitor session.
type Options struct {
	// Source is the log input polled each cycle.
	Source models.Source

	// Interval is the polling cadence. Zero takes the 30s default.
	Interval time.Duration

	// Window is the trailing duration metrics are computed over. Zero means
	// the whole cumulative timeline.
	Window time.Duration

	// Rise, Recovery and MinDelta tune the debouncer; zeros take its
	// defaults.
	Rise     float64
	Recovery float64
	MinDelta float64

	// OnAlert, when set, receives each fired alert synchronously on the
	// cycle goroutine.
	OnAlert func(models.Alert)
}

// Summary reports a session's totals.
type Summary struct {
	Cycles int
	Alerts []models.Alert
	State  State
}

// Monitor owns one session: the cumulative timeline, the per-source consumed
// offset, and the debounce state. It runs on a single goroutine; accessors
// are meant for use before Run starts or after it returns.
type Monitor struct {
	opts    Options
	parser  *parser.Parser
	logger  *zap.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger

	debouncer *Debouncer
	timeline  models.Timeline
	consumed  int
	state     State
	cycles    int
	alerts    []models.Alert

	now func() time.Time
}

// New creates a monitor session.
func New(opts Options, p *parser.Parser, logger *zap.Logger, m *metrics.Metrics, a *audit.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Monitor{
		opts:      opts,
		parser:    p,
		logger:    logger,
		metrics:   m,
		audit:     a,
		debouncer: NewDebouncer(opts.Rise, opts.Recovery, opts.MinDelta),
		state:     StateIdle,
		now:       time.Now,
	}
}

// Run executes cycles at the configured interval until ctx is cancelled.
// The first cycle runs immediately. Cycles never overlap: a slow cycle
// delays the next tick, and cancellation takes effect at the next cycle
// boundary with the in-progress cycle completing. The returned Summary
// covers the whole session; cancellation is a clean stop, not an error.
func (m *Monitor) Run(ctx context.Context) (Summary, error) {
	m.logger.Info("Monitor started",
		zap.String("source", m.opts.Source.Name()),
		zap.Duration("interval", m.opts.Interval),
		zap.Duration("window", m.opts.Window),
	)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

loop:
	for {
		if _, err := m.Cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break loop
			}
			return m.Summary(), err
		}
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	summary := m.Summary()
	m.logger.Info("Monitor stopped",
		zap.String("source", m.opts.Source.Name()),
		zap.Int("cycles", summary.Cycles),
		zap.Int("alerts", len(summary.Alerts)),
	)
	return summary, nil
}

// Cycle runs one scan: re-read the source, append events not seen before to
// the session timeline, recompute the trend window, and consult the
// debouncer. The returned alert is non-nil only when this cycle fired.
//
// A source that yields no events this cycle (missing, empty, or entirely
// malformed) is recoverable: the window is still recomputed over the
// cumulative timeline so the session can observe recovery.
func (m *Monitor) Cycle(ctx context.Context) (*models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := m.now()
	if m.state == StateIdle {
		m.state = StateScanning
	}

	name := m.opts.Source.Name()

	res, err := m.parser.Parse(ctx, m.opts.Source)
	var fresh []models.LogEvent
	switch {
	case err == nil:
		events := res.Events
		if len(events) < m.consumed {
			m.logger.Warn("Source shrank since last cycle, treating content as rotated",
				zap.String("source", name),
				zap.Int("consumed", m.consumed),
				zap.Int("current", len(events)),
			)
			m.consumed = 0
		}
		fresh = events[m.consumed:]
		m.consumed = len(events)
	case clerrors.HasCode(err, clerrors.CodeUnparsableSource):
		m.logger.Warn("Source yielded no events this cycle",
			zap.String("source", name),
			zap.Error(err),
		)
	default:
		return nil, err
	}

	if len(fresh) > 0 {
		// Normalize within the batch; the source itself is trusted to be
		// append-only across cycles.
		batch := timeline.Build(timeline.Sequence{Name: name, Priority: m.opts.Source.Priority, Events: fresh})
		m.timeline = m.timeline.Append(batch.Events...)
		if m.metrics != nil {
			m.metrics.RecordEventsParsed(name, len(fresh))
		}
	}

	nowTime := m.now()
	events := m.timeline.Events
	if m.opts.Window > 0 {
		events = m.timeline.Window(nowTime.Add(-m.opts.Window))
	}

	total := len(events)
	errCount := 0
	for i := range events {
		if events[i].Severity.IsErrorClass() {
			errCount++
		}
	}
	ratio := 0.0
	if total > 0 {
		ratio = float64(errCount) / float64(total)
	}

	window := models.TrendWindow{
		Total:      total,
		ErrorCount: errCount,
		ErrorRatio: ratio,
		RatioDelta: ratio - m.debouncer.Previous(),
	}
	if total > 0 {
		window.From = events[0].Timestamp
		window.To = events[total-1].Timestamp
	}

	severity, fired := m.debouncer.Observe(ratio)
	if m.metrics != nil {
		m.metrics.RecordMonitorCycle(ratio)
	}

	var alert *models.Alert
	if fired {
		m.state = StateAlerted
		a := models.Alert{
			Severity:    severity,
			Window:      window,
			TriggeredAt: nowTime,
			Message: fmt.Sprintf("error ratio %.2f (%d of %d events) rising by %.2f in %s",
				ratio, errCount, total, window.RatioDelta, name),
			Source: name,
		}
		m.alerts = append(m.alerts, a)
		alert = &a

		m.logger.Warn("Trend alert fired",
			zap.String("source", name),
			zap.String("severity", string(severity)),
			zap.Float64("ratio", ratio),
			zap.Float64("delta", window.RatioDelta),
			zap.Int("events", total),
		)
		if m.metrics != nil {
			m.metrics.RecordAlert(string(severity), true)
		}
		if m.opts.OnAlert != nil {
			m.opts.OnAlert(a)
		}
	} else {
		if m.debouncer.Suppressed() && severity != models.AlertInfo && m.metrics != nil {
			m.metrics.RecordAlert(string(severity), false)
		}
		if !m.debouncer.Suppressed() && m.state == StateAlerted {
			m.logger.Info("Excursion recovered",
				zap.String("source", name),
				zap.Float64("ratio", ratio),
			)
			m.state = StateScanning
		}
	}

	m.cycles++
	if m.audit != nil {
		m.audit.LogMonitorCycle(ctx, name, ratio, fired, m.now().Sub(start))
	}

	m.logger.Debug("Monitor cycle complete",
		zap.String("source", name),
		zap.Int("new_events", len(fresh)),
		zap.Int("window_events", total),
		zap.Float64("ratio", ratio),
		zap.String("state", string(m.state)),
	)

	return alert, nil
}

// Summary reports the session totals so far.
func (m *Monitor) Summary() Summary {
	alerts := make([]models.Alert, len(m.alerts))
	copy(alerts, m.alerts)
	return Summary{Cycles: m.cycles, Alerts: alerts, State: m.state}
}

// Timeline returns the cumulative session timeline.
func (m *Monitor) Timeline() models.Timeline {
	return m.timeline
}

// State returns the monitor's current lifecycle state.
func (m *Monitor) State() State {
	return m.state
}
