package models

import "time"

// TrendWindow is one cycle's metric snapshot over the most recent slice of a
// monitor session's cumulative timeline.
type TrendWindow struct {
	Total      int       `json:"total"`
	ErrorCount int       `json:"error_count"`
	ErrorRatio float64   `json:"error_ratio"`
	RatioDelta float64   `json:"ratio_delta"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
}

// AlertSeverity grades a fired alert.
type AlertSeverity string

// Alert severities, lowest to highest.
const (
	AlertInfo     AlertSeverity = "INFO"
	AlertWarning  AlertSeverity = "WARNING"
	AlertHigh     AlertSeverity = "HIGH"
	AlertCritical AlertSeverity = "CRITICAL"
)

// rank orders alert severities for debounce comparisons.
func (s AlertSeverity) rank() int {
	switch s {
	case AlertWarning:
		return 1
	case AlertHigh:
		return 2
	case AlertCritical:
		return 3
	default:
		return 0
	}
}

// AtMost reports whether s is equal to or lower than other in severity.
func (s AlertSeverity) AtMost(other AlertSeverity) bool {
	return s.rank() <= other.rank()
}

// Alert records one rising-edge threshold crossing. Exactly one Alert is
// created per sustained excursion; it is immutable afterward.
type Alert struct {
	Severity    AlertSeverity `json:"severity"`
	Window      TrendWindow   `json:"metric_snapshot"`
	TriggeredAt time.Time     `json:"triggered_at"`
	Message     string        `json:"message"`
	Source      string        `json:"source"`
}
