package models

import "time"

// Timeline is an ordered sequence of LogEvent, non-decreasing by timestamp
// with ties broken by source priority then intra-source index. A timeline is
// built once per analysis or monitor cycle and never mutated in place; the
// monitor grows its session timeline by appending newly read events to a
// fresh copy each cycle.
type Timeline struct {
	Events []LogEvent `json:"events"`
}

// Len returns the number of primary events in the timeline. Continuation
// lines attached to an event do not count.
func (t Timeline) Len() int {
	return len(t.Events)
}

// Append returns a new Timeline consisting of the receiver's events followed
// by more. Callers must only append events that sort at or after the last
// existing event; the monitor guarantees this by reading each source forward.
func (t *Timeline) Append(more ...LogEvent) Timeline {
	events := make([]LogEvent, 0, len(t.Events)+len(more))
	events = append(events, t.Events...)
	events = append(events, more...)
	return Timeline{Events: events}
}

// CountBySeverity returns event counts keyed by severity name.
func (t *Timeline) CountBySeverity() map[string]int {
	counts := make(map[string]int)
	for i := range t.Events {
		counts[t.Events[i].Severity.String()]++
	}
	return counts
}

// CountByComponent returns event counts keyed by component.
func (t *Timeline) CountByComponent() map[string]int {
	counts := make(map[string]int)
	for i := range t.Events {
		if c := t.Events[i].Component; c != "" {
			counts[c]++
		}
	}
	return counts
}

// ErrorRatio returns the fraction of events whose severity is error-class.
// An empty timeline has ratio 0.
func (t *Timeline) ErrorRatio() float64 {
	if len(t.Events) == 0 {
		return 0
	}
	errors := 0
	for i := range t.Events {
		if t.Events[i].Severity.IsErrorClass() {
			errors++
		}
	}
	return float64(errors) / float64(len(t.Events))
}

// Window returns the suffix of events with Timestamp >= since. Because events
// are time-ordered this is a binary-search slice, not a copy.
func (t *Timeline) Window(since time.Time) []LogEvent {
	lo, hi := 0, len(t.Events)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.Events[mid].Timestamp.Before(since) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return t.Events[lo:]
}

// Span returns the first and last event timestamps. Zero times are returned
// for an empty timeline.
func (t *Timeline) Span() (first, last time.Time) {
	if len(t.Events) == 0 {
		return
	}
	return t.Events[0].Timestamp, t.Events[len(t.Events)-1].Timestamp
}
