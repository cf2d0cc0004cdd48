package monitor

import "github.com/clarityops/clarity/internal/models"

// Severity band floors. Band edges are inclusive; the fire decision
// separately requires the ratio to strictly exceed the rise threshold.
const (
	criticalBand = 0.8
	highBand     = 0.5
	warningBand  = 0.3
)

// SeverityFor maps a windowed error ratio to its alert severity band.
func SeverityFor(ratio float64) models.AlertSeverity {
	switch {
	case ratio >= criticalBand:
		return models.AlertCritical
	case ratio >= highBand:
		return models.AlertHigh
	case ratio >= warningBand:
		return models.AlertWarning
	default:
		return models.AlertInfo
	}
}

// Debouncer is the pure rising-edge decision core for trend alerts. It
// retains one previous ratio and the severity of the last alert fired, so a
// monitor session can be checkpointed and resumed without replaying history.
type Debouncer struct {
	rise     float64
	recovery float64
	minDelta float64

	prev       float64
	suppressed bool
	fired      models.AlertSeverity
}

// NewDebouncer creates a debouncer. Zero thresholds take the production
// defaults: rise 0.5, recovery 0.3, minimum rise delta 0.05.
func NewDebouncer(rise, recovery, minDelta float64) *Debouncer {
	if rise == 0 {
		rise = 0.5
	}
	if recovery == 0 {
		recovery = 0.3
	}
	if minDelta == 0 {
		minDelta = 0.05
	}
	return &Debouncer{
		rise:     rise,
		recovery: recovery,
		minDelta: minDelta,
		fired:    models.AlertInfo,
	}
}

// Observe consumes one cycle's error ratio and reports the severity band and
// whether an alert fires this cycle. An alert fires when the ratio strictly
// exceeds the rise threshold, the rise since the previous cycle meets the
// minimum delta, and no alert of equal or higher severity is already live
// for the current excursion. A ratio below the recovery threshold ends the
// excursion; a strictly higher band may still escalate before that.
func (d *Debouncer) Observe(ratio float64) (models.AlertSeverity, bool) {
	band := SeverityFor(ratio)
	delta := ratio - d.prev
	d.prev = ratio

	if ratio < d.recovery {
		d.suppressed = false
		d.fired = models.AlertInfo
		return band, false
	}

	if band == models.AlertInfo || ratio <= d.rise || delta < d.minDelta {
		return band, false
	}
	if d.suppressed && band.AtMost(d.fired) {
		return band, false
	}

	d.suppressed = true
	d.fired = band
	return band, true
}

// Suppressed reports whether an excursion is live: an alert has fired and
// the ratio has not yet dropped below the recovery threshold.
func (d *Debouncer) Suppressed() bool {
	return d.suppressed
}

// Previous returns the most recently observed ratio.
func (d *Debouncer) Previous() float64 {
	return d.prev
}
