// Package session holds the interactive follow-up conversation over a
// completed analysis. The underlying report is immutable for the life of the
// session; only the exchange history grows.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/analysis"
	"github.com/clarityops/clarity/internal/cache"
	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/oracle"
)

// contextExchanges is how many of the most recent exchanges are replayed to
// the oracle with each question.
const contextExchanges = 2

// Oracle answers are cached per normalized question so a repeated question
// within a session costs no second oracle call.
const (
	answerCacheSize = 64
	answerTTL       = 5 * time.Minute
)

// Exchange is one question and its answer. Fallback marks answers derived
// from the local report because the oracle was absent or failed.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Fallback bool      `json:"fallback"`
	AskedAt  time.Time `json:"asked_at"`
}

// Transcript is a point-in-time export of the conversation.
type Transcript struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Exchanges []Exchange `json:"exchanges"`
}

// Session answers follow-up questions about one analysis report.
type Session struct {
	mu        sync.RWMutex
	report    *analysis.Report
	oracle    oracle.Client
	logger    *zap.Logger
	condensed string
	answers   *cache.Cache
	exchanges []Exchange
	createdAt time.Time
	updatedAt time.Time
	now       func() time.Time
}

// New creates a session over a completed report. A nil oracle is allowed;
// every answer is then derived from the report alone.
func New(report *analysis.Report, oracleClient oracle.Client, logger *zap.Logger) *Session {
	if report == nil {
		report = &analysis.Report{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	return &Session{
		report:    report,
		oracle:    oracleClient,
		logger:    logger,
		condensed: analysis.Condense(report.Timeline, 0, 0),
		answers:   cache.New(answerCacheSize),
		createdAt: now,
		updatedAt: now,
		now:       time.Now,
	}
}

// Ask answers one follow-up question and records the exchange. The oracle
// sees the condensed timeline, the verdict, and the most recent exchanges;
// when it is absent or fails, the answer comes from the local report and the
// exchange is marked Fallback.
func (s *Session) Ask(ctx context.Context, question string) (Exchange, error) {
	if err := ctx.Err(); err != nil {
		return Exchange{}, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return Exchange{}, clerrors.NewInvalidInput("question must not be empty")
	}

	answer, fallback := s.answer(ctx, question)
	exchange := Exchange{
		Question: question,
		Answer:   answer,
		Fallback: fallback,
		AskedAt:  s.now(),
	}

	s.mu.Lock()
	s.exchanges = append(s.exchanges, exchange)
	s.updatedAt = exchange.AskedAt
	s.mu.Unlock()
	return exchange, nil
}

// Export returns a copy of the conversation so far.
func (s *Session) Export() Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exchanges := make([]Exchange, len(s.exchanges))
	copy(exchanges, s.exchanges)
	return Transcript{
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
		Exchanges: exchanges,
	}
}

// Report returns the analysis this session was opened on.
func (s *Session) Report() *analysis.Report {
	return s.report
}

// Stats returns session statistics for logging.
func (s *Session) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fallbacks := 0
	for i := range s.exchanges {
		if s.exchanges[i].Fallback {
			fallbacks++
		}
	}
	return map[string]interface{}{
		"created_at":   s.createdAt,
		"updated_at":   s.updatedAt,
		"exchanges":    len(s.exchanges),
		"fallbacks":    fallbacks,
		"age_seconds":  time.Since(s.createdAt).Seconds(),
		"answer_cache": s.answers.Stats(),
	}
}

func (s *Session) answer(ctx context.Context, question string) (string, bool) {
	if s.oracle == nil {
		return s.localAnswer(question), true
	}
	key := strings.ToLower(question)
	if cached, ok := s.answers.Get(key); ok {
		if text, ok := cached.(string); ok && text != "" {
			return text, false
		}
	}
	reply, err := s.oracle.Converse(ctx, oracle.ConverseRequest{
		Context:  s.promptContext(),
		Question: question,
	})
	if err != nil {
		s.logger.Warn("Oracle conversation failed, answering from the local report", zap.Error(err))
		return s.localAnswer(question), true
	}
	if reply = strings.TrimSpace(reply); reply == "" {
		return s.localAnswer(question), true
	}
	s.answers.Set(key, reply, answerTTL)
	return reply, false
}

// promptContext assembles what the oracle may consider: the condensed
// timeline, the verdict, the selected command, and the last exchanges.
func (s *Session) promptContext() string {
	s.mu.RLock()
	recent := s.exchanges
	if len(recent) > contextExchanges {
		recent = recent[len(recent)-contextExchanges:]
	}
	recent = append([]Exchange(nil), recent...)
	s.mu.RUnlock()

	var b strings.Builder
	b.WriteString(s.condensed)
	b.WriteString("\nVERDICT:\n")
	fmt.Fprintf(&b, "Summary: %s\n", s.report.Verdict.Summary)
	fmt.Fprintf(&b, "Root cause: %s\n", s.report.Verdict.RootCauseDescription)
	fmt.Fprintf(&b, "Affected components: %s\n", strings.Join(s.report.Verdict.AffectedComponents, ", "))
	fmt.Fprintf(&b, "Confidence: %.2f\n", s.report.Verdict.ConfidenceScore)
	if s.report.Command.ToolName != "" {
		fmt.Fprintf(&b, "Suggested remediation: %s (%s)\n",
			s.report.Command.ToolName, s.report.Command.CommandText)
	}
	for _, ex := range recent {
		fmt.Fprintf(&b, "\nPrevious question: %s\nPrevious answer: %s\n", ex.Question, ex.Answer)
	}
	return b.String()
}

// localAnswer derives a deterministic answer from the report alone. The
// rules are keyword matches checked in a fixed order, so the same question
// over the same report always yields the same answer.
func (s *Session) localAnswer(question string) string {
	q := strings.ToLower(question)
	verdict := s.report.Verdict
	switch {
	case containsAny(q, "component", "service", "affected", "where"):
		if len(verdict.AffectedComponents) == 0 {
			return "No affected components were identified in this analysis."
		}
		return fmt.Sprintf("The affected components are %s.",
			strings.Join(verdict.AffectedComponents, ", "))
	case containsAny(q, "why", "cause", "root", "reason", "wrong"):
		if verdict.RootCauseDescription == "" {
			return "No root cause was determined in this analysis."
		}
		return verdict.RootCauseDescription
	case containsAny(q, "fix", "remediat", "recommend", "suggest", "tool", "action"):
		if s.report.Command.ToolName == "" {
			return "No remediation was selected for this analysis."
		}
		return fmt.Sprintf("The suggested remediation is %s: %s",
			s.report.Command.ToolName, s.report.Command.CommandText)
	case containsAny(q, "when", "time", "span", "start", "end"):
		if s.report.TotalEvents == 0 {
			return "The timeline is empty, so there is no time span to report."
		}
		return fmt.Sprintf("The timeline spans %s to %s.",
			s.report.FirstEvent.UTC().Format(time.RFC3339),
			s.report.LastEvent.UTC().Format(time.RFC3339))
	case containsAny(q, "how many", "count", "total", "events", "severity"):
		return fmt.Sprintf("The timeline holds %d events: %s.",
			s.report.TotalEvents, formatSeverityCounts(s.report.SeverityCounts))
	default:
		return fmt.Sprintf("%s (confidence %.2f)", verdict.Summary, verdict.ConfidenceScore)
	}
}

var severityDisplayOrder = []string{"CRITICAL", "ERROR", "WARN", "INFO", "DEBUG"}

func formatSeverityCounts(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, name := range severityDisplayOrder {
		if n := counts[name]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, name))
		}
	}
	if len(parts) == 0 {
		return "none by severity"
	}
	return strings.Join(parts, ", ")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
