package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarityops/clarity/internal/analysis"
	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/models"
	"github.com/clarityops/clarity/internal/oracle"
)

type fakeOracle struct {
	answer       string
	err          error
	calls        int
	lastContext  string
	lastQuestion string
}

func (f *fakeOracle) Analyze(context.Context, oracle.AnalysisRequest) (models.AnalysisVerdict, error) {
	return models.AnalysisVerdict{}, clerrors.NewOracleUnavailable("fake oracle does not analyze")
}

func (f *fakeOracle) Converse(_ context.Context, req oracle.ConverseRequest) (string, error) {
	f.calls++
	f.lastContext = req.Context
	f.lastQuestion = req.Question
	if f.err != nil {
		return "", f.err
	}
	if f.answer != "" {
		return f.answer, nil
	}
	return "echo: " + req.Question, nil
}

func testReport() *analysis.Report {
	return &analysis.Report{
		GeneratedAt:     time.Date(2024, 1, 15, 10, 6, 0, 0, time.UTC),
		TotalEvents:     2,
		FirstEvent:      time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		LastEvent:       time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC),
		SeverityCounts:  map[string]int{"ERROR": 1, "INFO": 1},
		ComponentCounts: map[string]int{"auth-service": 2},
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
		Timeline: models.Timeline{Events: []models.LogEvent{
			{
				Timestamp: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
				Severity:  models.SeverityInfo,
				Component: "auth-service",
				Message:   "startup complete",
			},
			{
				Timestamp: time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC),
				Severity:  models.SeverityError,
				Component: "auth-service",
				Message:   "connection pool exhausted",
			},
		}},
	}
}

func TestAskUsesOracle(t *testing.T) {
	faker := &fakeOracle{answer: "The pool was exhausted by a connection leak."}
	sess := New(testReport(), faker, nil)

	exchange, err := sess.Ask(context.Background(), "what exhausted the pool?")
	require.NoError(t, err)

	assert.False(t, exchange.Fallback)
	assert.Equal(t, "The pool was exhausted by a connection leak.", exchange.Answer)
	assert.Equal(t, "what exhausted the pool?", faker.lastQuestion)
	assert.Contains(t, faker.lastContext, "TOTAL EVENTS: 2")
	assert.Contains(t, faker.lastContext, "VERDICT:")
	assert.Contains(t, faker.lastContext, "Root cause: The database connection pool in auth-service is exhausted.")
	assert.Contains(t, faker.lastContext, "Suggested remediation: restart_service")
}

func TestAskCarriesLastTwoExchanges(t *testing.T) {
	faker := &fakeOracle{}
	sess := New(testReport(), faker, nil)
	ctx := context.Background()

	for _, q := range []string{"alpha?", "bravo?", "charlie?"} {
		_, err := sess.Ask(ctx, q)
		require.NoError(t, err)
	}
	_, err := sess.Ask(ctx, "delta?")
	require.NoError(t, err)

	assert.Contains(t, faker.lastContext, "Previous question: bravo?")
	assert.Contains(t, faker.lastContext, "Previous question: charlie?")
	assert.NotContains(t, faker.lastContext, "alpha?")
}

func TestAskFallbackWhenOracleFails(t *testing.T) {
	faker := &fakeOracle{err: clerrors.NewOracleUnavailable("request timed out")}
	sess := New(testReport(), faker, nil)

	exchange, err := sess.Ask(context.Background(), "why did this happen?")
	require.NoError(t, err)

	assert.Equal(t, 1, faker.calls)
	assert.True(t, exchange.Fallback)
	assert.Equal(t, "The database connection pool in auth-service is exhausted.", exchange.Answer)
}

func TestAskWithoutOracleAnswersByRule(t *testing.T) {
	sess := New(testReport(), nil, nil)
	ctx := context.Background()

	cases := []struct {
		question string
		want     string
	}{
		{"which components are affected?", "The affected components are auth-service."},
		{"why did this happen?", "The database connection pool in auth-service is exhausted."},
		{"how should I fix this?", "The suggested remediation is restart_service: kubectl rollout restart deployment/auth-service -n default"},
		{"when did the incident start?", "The timeline spans 2024-01-15T10:00:00Z to 2024-01-15T10:05:00Z."},
		{"how many events were recorded?", "The timeline holds 2 events: 1 ERROR, 1 INFO."},
		{"summarize the situation", "auth-service degraded by connection pool exhaustion (confidence 0.90)"},
	}
	for _, tc := range cases {
		t.Run(tc.question, func(t *testing.T) {
			exchange, err := sess.Ask(ctx, tc.question)
			require.NoError(t, err)
			assert.True(t, exchange.Fallback)
			assert.Equal(t, tc.want, exchange.Answer)
		})
	}
}

func TestAskSameQuestionSameAnswer(t *testing.T) {
	sess := New(testReport(), nil, nil)
	ctx := context.Background()

	first, err := sess.Ask(ctx, "what is the root cause?")
	require.NoError(t, err)
	second, err := sess.Ask(ctx, "what is the root cause?")
	require.NoError(t, err)
	assert.Equal(t, first.Answer, second.Answer)
}

func TestAskRepeatedQuestionServedFromCache(t *testing.T) {
	faker := &fakeOracle{answer: "A connection leak in auth-service."}
	sess := New(testReport(), faker, nil)
	ctx := context.Background()

	first, err := sess.Ask(ctx, "What leaked?")
	require.NoError(t, err)
	second, err := sess.Ask(ctx, "what leaked?")
	require.NoError(t, err)

	assert.Equal(t, 1, faker.calls, "repeated question should not reach the oracle")
	assert.Equal(t, first.Answer, second.Answer)
	assert.False(t, second.Fallback)
	require.Len(t, sess.Export().Exchanges, 2)
}

func TestAskEmptyQuestion(t *testing.T) {
	sess := New(testReport(), nil, nil)

	for _, q := range []string{"", "   "} {
		_, err := sess.Ask(context.Background(), q)
		assert.True(t, clerrors.HasCode(err, clerrors.CodeInvalidInput), "question %q", q)
	}
	assert.Empty(t, sess.Export().Exchanges)
}

func TestAskCancelledContext(t *testing.T) {
	sess := New(testReport(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sess.Ask(ctx, "why?")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sess.Export().Exchanges)
}

func TestExportCopiesExchanges(t *testing.T) {
	sess := New(testReport(), nil, nil)
	ctx := context.Background()

	_, err := sess.Ask(ctx, "why did this happen?")
	require.NoError(t, err)
	_, err = sess.Ask(ctx, "how should I fix this?")
	require.NoError(t, err)

	transcript := sess.Export()
	require.Len(t, transcript.Exchanges, 2)
	assert.False(t, transcript.UpdatedAt.Before(transcript.CreatedAt))

	transcript.Exchanges[0].Question = "mutated"
	assert.Equal(t, "why did this happen?", sess.Export().Exchanges[0].Question)
}

func TestStatsCountsFallbacks(t *testing.T) {
	sess := New(testReport(), nil, nil)
	_, err := sess.Ask(context.Background(), "why?")
	require.NoError(t, err)

	stats := sess.Stats()
	assert.Equal(t, 1, stats["exchanges"])
	assert.Equal(t, 1, stats["fallbacks"])
}

func TestNewNilReport(t *testing.T) {
	sess := New(nil, nil, nil)
	exchange, err := sess.Ask(context.Background(), "how many events are there?")
	require.NoError(t, err)
	assert.Contains(t, exchange.Answer, "0 events")
}
