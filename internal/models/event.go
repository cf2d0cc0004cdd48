// Package models defines the core data types shared across the analysis
// pipeline: normalized log events, timelines, trend metrics, alerts, and
// remediation verdicts.
package models

import (
	"strings"
	"time"
)

// Severity classifies a log event. Values are ordered so that severities
// can be compared: Debug < Info < Warn < Error < Critical.
type Severity int8

// Log event severities, lowest to highest.
const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityDebug:    "DEBUG",
	SeverityInfo:     "INFO",
	SeverityWarn:     "WARN",
	SeverityError:    "ERROR",
	SeverityCritical: "CRITICAL",
}

// String returns the canonical upper-case name of the severity.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "INFO"
}

// IsErrorClass reports whether the severity counts toward error-rate metrics.
func (s Severity) IsErrorClass() bool {
	return s >= SeverityError
}

// ParseSeverity maps a raw level string to a Severity. Common aliases are
// accepted (WARNING, FATAL, TRACE, ERR). The second return value is false
// when the input matched no known level; callers typically fall back to
// SeverityInfo in that case.
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG", "TRACE":
		return SeverityDebug, true
	case "INFO", "NOTICE":
		return SeverityInfo, true
	case "WARN", "WARNING":
		return SeverityWarn, true
	case "ERROR", "ERR":
		return SeverityError, true
	case "CRITICAL", "FATAL", "CRIT":
		return SeverityCritical, true
	default:
		return SeverityInfo, false
	}
}

// LogEvent is one normalized record produced by the parser. Events are
// immutable once created; the timeline that holds them owns them.
//
// Timestamp is always a resolved instant: records whose timestamp cannot be
// parsed are rejected by the parser rather than defaulted, so ordering is
// never silently corrupted.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Severity  Severity  `json:"severity"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw,omitempty"`

	// Index is the intra-source emission order, used as the final sort
	// tie-breaker so merges stay deterministic at whole-second resolution.
	Index int `json:"index"`

	// Continuations holds trailing free-text lines (stack traces and the
	// like) that carried no timestamp of their own and were attached to
	// this event instead of being dropped.
	Continuations []string `json:"continuations,omitempty"`
}

// FullMessage returns the message with any continuation lines appended.
func (e *LogEvent) FullMessage() string {
	if len(e.Continuations) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Continuations)+1)
	parts = append(parts, e.Message)
	parts = append(parts, e.Continuations...)
	return strings.Join(parts, "\n")
}

// Format identifies how a raw log source is encoded.
type Format string

// Supported source formats. FormatAuto defers to content sniffing.
const (
	FormatAuto       Format = "auto"
	FormatStructured Format = "structured"
	FormatTable      Format = "table"
	FormatFreeText   Format = "freetext"
)

// ParseFormat maps a declared format name to a Format. Unknown names map to
// FormatAuto with ok=false.
func ParseFormat(raw string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return FormatAuto, true
	case "structured", "json", "ndjson":
		return FormatStructured, true
	case "table", "csv", "delimited":
		return FormatTable, true
	case "freetext", "text", "log", "plain":
		return FormatFreeText, true
	default:
		return FormatAuto, false
	}
}

// Source declares one raw log input to the pipeline.
type Source struct {
	// Path is the location of the raw log data on disk.
	Path string `json:"path"`

	// Format is the declared encoding; FormatAuto lets the parser sniff.
	Format Format `json:"format"`

	// Priority is the source-declaration index. It breaks timestamp ties
	// during the merge so the timeline order is total and deterministic.
	Priority int `json:"priority"`
}

// Name returns the short identifier events from this source carry.
func (s Source) Name() string {
	if i := strings.LastIndexByte(s.Path, '/'); i >= 0 {
		return s.Path[i+1:]
	}
	return s.Path
}
