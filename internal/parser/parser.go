// Package parser converts raw log sources into normalized events.
//
// Three formats are supported: structured records (NDJSON or a JSON array),
// delimited tables with a header row, and free text with line-oriented
// timestamp heuristics. Records that cannot resolve a timestamp are dropped
// and counted rather than defaulted, so a malformed record can never corrupt
// timeline ordering.
package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/models"
)

// Field aliases accepted by structured and table formats
var (
	timestampAliases = []string{"timestamp", "time", "@timestamp", "datetime", "date"}
	severityAliases  = []string{"level", "severity", "log_level", "priority"}
	componentAliases = []string{"service", "component", "module", "app", "application"}
	messageAliases   = []string{"message", "msg", "text", "description", "error"}
)

// timestampLayouts is the shared ordered layout list. Go's time.Parse accepts
// an optional fractional-second field (dot or comma) after seconds, so the
// layouts omit it.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
	"02-01-2006 15:04:05",
	"01-02-2006 15:04:05",
	"2006-01-02",
	"02-01-2006",
	"01-02-2006",
	time.Stamp, // syslog, year filled in at parse time
}

// Ordered timestamp-extraction patterns for free-text lines
var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?(?:Z|[+-]\d{2}:?\d{2})?`),
	regexp.MustCompile(`\d{2}/\d{2}/\d{4} \d{2}:\d{2}:\d{2}`),
	regexp.MustCompile(`\d{2}-\d{2}-\d{4} \d{2}:\d{2}:\d{2}`),
	regexp.MustCompile(`[A-Z][a-z]{2} {1,2}\d{1,2} \d{2}:\d{2}:\d{2}`),
}

// Free-text severity keywords, scanned in order; first match wins
var severityKeywords = []struct {
	keyword  string
	severity models.Severity
}{
	{"ERROR", models.SeverityError},
	{"WARN", models.SeverityWarn}, // also matches WARNING
	{"CRITICAL", models.SeverityCritical},
	{"INFO", models.SeverityInfo},
}

var (
	serviceTokenPattern = regexp.MustCompile(`(?i)\bservice[=:]\s*([A-Za-z0-9._-]+)`)
	bracketTokenPattern = regexp.MustCompile(`\[([A-Za-z][A-Za-z0-9._-]*)\]`)
)

// Result holds the outcome of parsing one source
type Result struct {
	Source      string
	Format      models.Format
	Events      []models.LogEvent
	Dropped     int
	DropReasons []string
}

// Parser converts raw log sources into normalized events. It holds no
// per-source state and is safe for concurrent use.
type Parser struct {
	logger *zap.Logger
}

// New creates a parser
func New(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse reads the source once and produces its normalized events in record
// order. Individual malformed records are dropped and counted; a source that
// yields no valid event at all returns an UnparsableSource error.
func (p *Parser) Parse(ctx context.Context, src models.Source) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := src.Name()
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, clerrors.NewUnparsableSource(name, fmt.Sprintf("read failed: %v", err)).WithCause(err)
	}

	format := src.Format
	if format == models.FormatAuto || format == "" {
		format = sniff(src.Path, data)
	}

	res := &Result{Source: name, Format: format}

	switch format {
	case models.FormatStructured:
		p.parseStructured(data, name, res)
	case models.FormatTable:
		p.parseTable(data, name, res)
	default:
		p.parseFreeText(data, name, res)
	}

	if len(res.Events) == 0 {
		reason := "no parseable records"
		if res.Dropped > 0 {
			reason = fmt.Sprintf("all %d records malformed", res.Dropped)
		}
		return nil, clerrors.NewUnparsableSource(name, reason)
	}

	p.logger.Debug("Parsed source",
		zap.String("source", name),
		zap.String("format", string(res.Format)),
		zap.Int("events", len(res.Events)),
		zap.Int("dropped", res.Dropped),
	)

	return res, nil
}

// sniff infers the format from extension, then content shape
func sniff(path string, data []byte) models.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".ndjson", ".jsonl":
		return models.FormatStructured
	case ".csv":
		return models.FormatTable
	case ".log", ".txt":
		return models.FormatFreeText
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return models.FormatStructured
	}

	// A comma-bearing first line that resolves a timestamp column looks
	// like a table header.
	if idx := bytes.IndexByte(trimmed, '\n'); idx > 0 || len(trimmed) > 0 {
		header := trimmed
		if idx > 0 {
			header = trimmed[:idx]
		}
		if bytes.IndexByte(header, ',') > 0 {
			cols := strings.Split(string(header), ",")
			if resolveColumn(cols, timestampAliases) >= 0 {
				return models.FormatTable
			}
		}
	}

	return models.FormatFreeText
}

func (p *Parser) parseStructured(data []byte, source string, res *Result) {
	records, lineNumbers := decodeRecords(data, res)

	for i, record := range records {
		label := fmt.Sprintf("record %d", i+1)
		if lineNumbers != nil {
			label = fmt.Sprintf("line %d", lineNumbers[i])
		}

		ts, ok := lookupTimestamp(record)
		if !ok {
			res.drop(fmt.Sprintf("%s: missing or unparsable timestamp", label))
			continue
		}

		raw, _ := json.Marshal(record)
		event := models.LogEvent{
			Timestamp: ts,
			Source:    source,
			Severity:  lookupSeverity(record),
			Component: lookupString(record, componentAliases, "unknown"),
			Message:   lookupString(record, messageAliases, string(raw)),
			Raw:       string(raw),
			Index:     len(res.Events),
		}
		res.Events = append(res.Events, event)
	}
}

// decodeRecords accepts a JSON array, a single object, or NDJSON. Line
// numbers are reported only for the NDJSON path, where they are meaningful.
func decodeRecords(data []byte, res *Result) ([]map[string]interface{}, []int) {
	var arr []map[string]interface{}
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err == nil {
		return []map[string]interface{}{obj}, nil
	}

	var records []map[string]interface{}
	var lineNumbers []int
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			res.drop(fmt.Sprintf("line %d: invalid JSON", i+1))
			continue
		}
		records = append(records, record)
		lineNumbers = append(lineNumbers, i+1)
	}
	return records, lineNumbers
}

func (p *Parser) parseTable(data []byte, source string, res *Result) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		res.drop(fmt.Sprintf("header: %v", err))
		return
	}

	tsCol := resolveColumn(header, timestampAliases)
	sevCol := resolveColumn(header, severityAliases)
	if tsCol < 0 || sevCol < 0 {
		// Header does not name the required columns; treat the whole
		// file as free text instead.
		res.Format = models.FormatFreeText
		p.parseFreeText(data, source, res)
		return
	}
	compCol := resolveColumn(header, componentAliases)
	msgCol := resolveColumn(header, messageAliases)

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.drop(fmt.Sprintf("row %d: %v", line, err))
			continue
		}

		ts, ok := parseTimestampString(cell(record, tsCol))
		if !ok {
			res.drop(fmt.Sprintf("row %d: missing or unparsable timestamp", line))
			continue
		}

		severity := models.SeverityInfo
		if s, ok := models.ParseSeverity(cell(record, sevCol)); ok {
			severity = s
		}

		component := cell(record, compCol)
		if component == "" {
			component = "unknown"
		}
		message := cell(record, msgCol)
		if message == "" {
			message = strings.TrimSpace(strings.Join(record, " "))
		}

		res.Events = append(res.Events, models.LogEvent{
			Timestamp: ts,
			Source:    source,
			Severity:  severity,
			Component: component,
			Message:   message,
			Raw:       strings.Join(record, ","),
			Index:     len(res.Events),
		})
	}
}

func (p *Parser) parseFreeText(data []byte, source string, res *Result) {
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		ts, ok := extractTimestamp(trimmed)
		if !ok {
			// Continuation line: attach to the previous event so
			// stack traces survive as one message.
			if n := len(res.Events); n > 0 {
				last := &res.Events[n-1]
				last.Continuations = append(last.Continuations, trimmed)
				continue
			}
			res.drop(fmt.Sprintf("line %d: no timestamp and no preceding event", i+1))
			continue
		}

		res.Events = append(res.Events, models.LogEvent{
			Timestamp: ts,
			Source:    source,
			Severity:  scanSeverity(trimmed),
			Component: extractComponent(trimmed, source),
			Message:   trimmed,
			Raw:       line,
			Index:     len(res.Events),
		})
	}
}

func (r *Result) drop(reason string) {
	r.Dropped++
	r.DropReasons = append(r.DropReasons, reason)
}

// resolveColumn returns the index of the first header column matching any
// alias, or -1
func resolveColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), alias) {
				return i
			}
		}
	}
	return -1
}

func cell(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}

func lookupTimestamp(record map[string]interface{}) (time.Time, bool) {
	for _, alias := range timestampAliases {
		value, found := record[alias]
		if !found {
			continue
		}
		return parseTimestampValue(value)
	}
	return time.Time{}, false
}

func lookupSeverity(record map[string]interface{}) models.Severity {
	for _, alias := range severityAliases {
		if value, found := record[alias]; found {
			if s, ok := models.ParseSeverity(fmt.Sprintf("%v", value)); ok {
				return s
			}
			return models.SeverityInfo
		}
	}
	return models.SeverityInfo
}

func lookupString(record map[string]interface{}, aliases []string, fallback string) string {
	for _, alias := range aliases {
		if value, found := record[alias]; found {
			if s := strings.TrimSpace(fmt.Sprintf("%v", value)); s != "" {
				return s
			}
		}
	}
	return fallback
}

// parseTimestampValue handles JSON string and epoch-number timestamps
func parseTimestampValue(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		return parseTimestampString(v)
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return parseTimestampValue(f)
	default:
		return time.Time{}, false
	}
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			// Syslog timestamps carry no year
			t = t.AddDate(time.Now().Year(), 0, 0)
		}
		return t, true
	}
	return time.Time{}, false
}

func extractTimestamp(line string) (time.Time, bool) {
	for _, pattern := range timestampPatterns {
		match := pattern.FindString(line)
		if match == "" {
			continue
		}
		if ts, ok := parseTimestampString(match); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func scanSeverity(line string) models.Severity {
	upper := strings.ToUpper(line)
	for _, kw := range severityKeywords {
		if strings.Contains(upper, kw.keyword) {
			return kw.severity
		}
	}
	return models.SeverityInfo
}

// extractComponent pulls a service=name token or a bracketed token that is
// not a severity keyword
func extractComponent(line, fallback string) string {
	if m := serviceTokenPattern.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	for _, m := range bracketTokenPattern.FindAllStringSubmatch(line, -1) {
		if _, isSeverity := models.ParseSeverity(m[1]); isSeverity {
			continue
		}
		return m[1]
	}
	return fallback
}
