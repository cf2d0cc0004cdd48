// Package analysis drives the one-shot diagnosis pipeline: parse every
// declared source, merge a single timeline, obtain a verdict from the AI
// oracle (or derive a local fallback), select a remediation command, and
// assemble the final report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/audit"
	"github.com/clarityops/clarity/internal/dispatch"
	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/metrics"
	"github.com/clarityops/clarity/internal/models"
	"github.com/clarityops/clarity/internal/oracle"
	"github.com/clarityops/clarity/internal/parser"
	"github.com/clarityops/clarity/internal/remedy"
	"github.com/clarityops/clarity/internal/timeline"
	"github.com/clarityops/clarity/internal/tracing"
)

const (
	originOracle   = "oracle"
	originFallback = "fallback"
)

// Dispatcher is the tool-server surface used when a remediation should be
// executed rather than only suggested. Satisfied by dispatch.Dispatcher.
type Dispatcher interface {
	FetchCatalog(ctx context.Context) (remedy.Catalog, error)
	Dispatch(ctx context.Context, cmd models.RemediationCommand) (dispatch.Result, error)
}

// SourceReport describes how one declared source fared during parsing. A
// source that could not be read at all is marked Skipped with a Reason;
// individually malformed records only raise Dropped.
type SourceReport struct {
	Source      string   `json:"source"`
	Format      string   `json:"format,omitempty"`
	Events      int      `json:"events"`
	Dropped     int      `json:"dropped,omitempty"`
	Skipped     bool     `json:"skipped,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	DropReasons []string `json:"drop_reasons,omitempty"`
}

// Report is the complete outcome of one analysis run. It is always produced,
// even when every source failed to parse or the oracle was unreachable.
type Report struct {
	GeneratedAt     time.Time                 `json:"generated_at"`
	Sources         []SourceReport            `json:"sources"`
	TotalEvents     int                       `json:"total_events"`
	FirstEvent      time.Time                 `json:"first_event"`
	LastEvent       time.Time                 `json:"last_event"`
	SeverityCounts  map[string]int            `json:"severity_counts"`
	ComponentCounts map[string]int            `json:"component_counts"`
	Verdict         models.AnalysisVerdict    `json:"verdict"`
	Command         models.RemediationCommand `json:"command"`
	FallbackUsed    bool                      `json:"fallback_used"`
	Dispatched      bool                      `json:"dispatched"`
	DispatchNote    string                    `json:"dispatch_note,omitempty"`

	// Timeline carries the merged events for interactive follow-up; it is
	// left out of serialized reports to keep them bounded.
	Timeline models.Timeline `json:"-"`
}

// Options carries the orchestrator's collaborators. Parser is required.
// Oracle and Dispatcher are optional: without an oracle every verdict is the
// local fallback, and without a dispatcher commands are suggested only.
type Options struct {
	Parser     *parser.Parser
	Oracle     oracle.Client
	Selector   *remedy.Selector
	Catalog    remedy.Catalog
	Dispatcher Dispatcher
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Audit      *audit.Logger
}

// Orchestrator runs the analysis pipeline. It keeps no state across runs and
// is safe for concurrent use as long as its collaborators are.
type Orchestrator struct {
	parser     *parser.Parser
	oracle     oracle.Client
	selector   *remedy.Selector
	catalog    remedy.Catalog
	dispatcher Dispatcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
	audit      *audit.Logger
	now        func() time.Time
}

// New assembles an orchestrator, filling defaults for absent collaborators.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Selector == nil {
		opts.Selector = remedy.NewSelector("")
	}
	if len(opts.Catalog) == 0 {
		opts.Catalog = remedy.DefaultCatalog()
	}
	return &Orchestrator{
		parser:     opts.Parser,
		oracle:     opts.Oracle,
		selector:   opts.Selector,
		catalog:    opts.Catalog,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		audit:      opts.Audit,
		now:        time.Now,
	}
}

// Analyze runs the full pipeline over the declared sources. It returns an
// error only for empty input or context cancellation; every other failure
// (unreadable sources, oracle outage, dispatch refusal) degrades into the
// report itself.
func (o *Orchestrator) Analyze(ctx context.Context, sources []models.Source) (*Report, error) {
	if len(sources) == 0 {
		return nil, clerrors.NewInvalidInput("at least one log source is required")
	}

	start := o.now()
	ctx, span := tracing.AnalysisSpan(ctx, len(sources))
	defer span.End()

	sourceReports := make([]SourceReport, 0, len(sources))
	sequences := make([]timeline.Sequence, 0, len(sources))
	names := make([]string, 0, len(sources))
	parsed, malformed := 0, 0

	for i, src := range sources {
		names = append(names, src.Name())
		res, err := o.parseSource(ctx, src)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				tracing.RecordError(span, err)
				return nil, err
			}
			o.logger.Warn("Skipping unreadable source",
				zap.String("source", src.Name()),
				zap.Error(err))
			sourceReports = append(sourceReports, SourceReport{
				Source:  src.Name(),
				Skipped: true,
				Reason:  reasonOf(err),
			})
			continue
		}

		sourceReports = append(sourceReports, SourceReport{
			Source:      res.Source,
			Format:      string(res.Format),
			Events:      len(res.Events),
			Dropped:     res.Dropped,
			DropReasons: res.DropReasons,
		})
		priority := src.Priority
		if priority == 0 {
			priority = i
		}
		sequences = append(sequences, timeline.Sequence{
			Name:     res.Source,
			Priority: priority,
			Events:   res.Events,
		})
		parsed += len(res.Events)
		malformed += res.Dropped
		if o.metrics != nil {
			o.metrics.RecordEventsParsed(res.Source, len(res.Events))
			for j := 0; j < res.Dropped; j++ {
				o.metrics.RecordMalformedRecord(res.Source)
			}
		}
	}

	merged := timeline.Build(sequences...)
	tracing.SetEventCounts(span, parsed, malformed)

	verdict, origin := o.verdict(ctx, merged)

	catalog := o.catalog
	if o.dispatcher != nil {
		if remote, err := o.dispatcher.FetchCatalog(ctx); err != nil {
			o.logger.Warn("Tool server catalog unavailable, using local catalog", zap.Error(err))
		} else {
			catalog = remote
		}
	}
	command := o.selector.Select(verdict, catalog)
	dispatched, note := o.dispatchCommand(ctx, command)

	first, last := merged.Span()
	report := &Report{
		GeneratedAt:     o.now(),
		Sources:         sourceReports,
		TotalEvents:     merged.Len(),
		FirstEvent:      first,
		LastEvent:       last,
		SeverityCounts:  merged.CountBySeverity(),
		ComponentCounts: merged.CountByComponent(),
		Verdict:         verdict,
		Command:         command,
		FallbackUsed:    origin == originFallback,
		Dispatched:      dispatched,
		DispatchNote:    note,
		Timeline:        merged,
	}

	if o.metrics != nil {
		o.metrics.RecordAnalysisRun(origin)
	}
	if o.audit != nil {
		o.audit.LogAnalysisRun(ctx, names, merged.Len(), true, o.now().Sub(start), nil)
	}
	o.logger.Info("Analysis complete",
		zap.Int("events", merged.Len()),
		zap.String("verdict_origin", origin),
		zap.String("tool", command.ToolName),
		zap.Bool("dispatched", dispatched))
	tracing.SetSuccess(span)
	return report, nil
}

func (o *Orchestrator) parseSource(ctx context.Context, src models.Source) (*parser.Result, error) {
	ctx, span := tracing.ParseSpan(ctx, src.Name())
	defer span.End()
	res, err := o.parser.Parse(ctx, src)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	tracing.SetEventCounts(span, len(res.Events), res.Dropped)
	return res, nil
}

// verdict consults the oracle when one is configured and events exist; any
// failure there degrades to the locally computed fallback.
func (o *Orchestrator) verdict(ctx context.Context, merged models.Timeline) (models.AnalysisVerdict, string) {
	if o.oracle == nil || merged.Len() == 0 {
		return FallbackVerdict(merged), originFallback
	}
	summary := Condense(merged, 0, 0)
	verdict, err := o.oracle.Analyze(ctx, oracle.AnalysisRequest{TimelineSummary: summary})
	if err != nil {
		o.logger.Warn("Oracle analysis failed, deriving local fallback verdict", zap.Error(err))
		return FallbackVerdict(merged), originFallback
	}
	return verdict, originOracle
}

// dispatchCommand executes the command through the tool server when a
// dispatcher is wired. Refusals and outages downgrade to suggested-only.
func (o *Orchestrator) dispatchCommand(ctx context.Context, cmd models.RemediationCommand) (bool, string) {
	if o.dispatcher == nil {
		return false, "suggested only, no dispatcher configured"
	}
	started := o.now()
	result, err := o.dispatcher.Dispatch(ctx, cmd)
	if o.audit != nil {
		o.audit.LogDispatch(ctx, cmd.ToolName, cmd.TargetComponent, err == nil, o.now().Sub(started), err)
	}
	if err != nil {
		o.logger.Warn("Dispatch failed, command is suggested only",
			zap.String("tool", cmd.ToolName),
			zap.Error(err))
		return false, fmt.Sprintf("suggested only, not dispatched: %s", reasonOf(err))
	}
	o.logger.Info("Remediation dispatched",
		zap.String("tool", result.Tool),
		zap.String("component", result.TargetComponent))
	return true, "dispatched via tool server"
}

func reasonOf(err error) string {
	var se *clerrors.StructuredError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
