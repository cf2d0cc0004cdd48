// Package oracle talks to the AI diagnosis service. It shapes requests for
// the configured model family, extracts completion text from the family's
// response envelope, and parses verdict JSON out of free-form completions.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/auth"
	"github.com/clarityops/clarity/internal/client"
	"github.com/clarityops/clarity/internal/config"
	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/metrics"
	"github.com/clarityops/clarity/internal/models"
)

// Client is the oracle surface the analysis pipeline consumes. Both calls
// are recoverable: on failure the orchestrator falls back to local summaries
// and the session to rule-based answers.
type Client interface {
	Analyze(ctx context.Context, req AnalysisRequest) (models.AnalysisVerdict, error)
	Converse(ctx context.Context, req ConverseRequest) (string, error)
}

// AnalysisRequest carries the condensed timeline summary sent for diagnosis.
type AnalysisRequest struct {
	TimelineSummary string
}

// ConverseRequest carries a follow-up question with its session context.
type ConverseRequest struct {
	Context  string
	Question string
}

// Model request bodies, keyed by model-id family.

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	TopP             float64            `json:"top_p"`
	Messages         []anthropicMessage `json:"messages"`
}

type titanGenerationConfig struct {
	MaxTokenCount int     `json:"maxTokenCount"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
}

type titanRequest struct {
	InputText            string                `json:"inputText"`
	TextGenerationConfig titanGenerationConfig `json:"textGenerationConfig"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type titanResponse struct {
	Results []struct {
		OutputText string `json:"outputText"`
	} `json:"results"`
}

// HTTPClient implements Client against a completion endpoint shaped like the
// hosted model runtimes: POST /model/{id}/invoke with a family-specific body.
type HTTPClient struct {
	http        *client.Client
	model       string
	maxTokens   int
	temperature float64
	topP        float64
	timeout     time.Duration
	logger      *zap.Logger
}

// NewHTTPClient builds the oracle client from configuration. The URL and API
// key must be present; RequireOracle reports that before commands start.
func NewHTTPClient(cfg *config.Config, logger *zap.Logger, recorder *metrics.Metrics, version string) (*HTTPClient, error) {
	if err := cfg.RequireOracle(); err != nil {
		return nil, err
	}
	authenticator, err := auth.NewAPIKey(cfg.OracleAPIKey)
	if err != nil {
		return nil, err
	}
	httpClient, err := client.New(cfg.OracleURL, authenticator, cfg, logger, recorder, version)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		http:        httpClient,
		model:       cfg.OracleModel,
		maxTokens:   cfg.OracleMaxTokens,
		temperature: cfg.OracleTemperature,
		topP:        cfg.OracleTopP,
		timeout:     cfg.OracleTimeout,
		logger:      logger,
	}, nil
}

// Analyze submits the condensed timeline and parses the verdict JSON out of
// the completion.
func (c *HTTPClient) Analyze(ctx context.Context, req AnalysisRequest) (models.AnalysisVerdict, error) {
	text, err := c.complete(ctx, BuildAnalysisPrompt(req.TimelineSummary))
	if err != nil {
		return models.AnalysisVerdict{}, err
	}
	return ParseVerdict(text)
}

// Converse answers a follow-up question grounded in the session context.
func (c *HTTPClient) Converse(ctx context.Context, req ConverseRequest) (string, error) {
	text, err := c.complete(ctx, BuildConversePrompt(req.Context, req.Question))
	if err != nil {
		return "", err
	}
	return text, nil
}

// Close releases idle transport connections.
func (c *HTTPClient) Close() error {
	return c.http.Close()
}

func (c *HTTPClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := c.requestBody(prompt)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.Do(ctx, &client.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/model/%s/invoke", url.PathEscape(c.model)),
		Body:   body,
	})
	if err != nil {
		return "", clerrors.NewOracleUnavailable(err.Error()).WithCause(err)
	}
	if resp.StatusCode >= 400 {
		return "", clerrors.NewOracleUnavailable(fmt.Sprintf("completion endpoint returned %d", resp.StatusCode)).
			WithDetails(map[string]interface{}{"status": resp.StatusCode})
	}

	text, err := completionText(c.model, resp.Body)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Oracle completion received",
		zap.String("model", c.model),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

func (c *HTTPClient) requestBody(prompt string) (interface{}, error) {
	switch {
	case strings.Contains(c.model, "anthropic"):
		return anthropicRequest{
			AnthropicVersion: "bedrock-2023-05-31",
			MaxTokens:        c.maxTokens,
			Temperature:      c.temperature,
			TopP:             c.topP,
			Messages:         []anthropicMessage{{Role: "user", Content: prompt}},
		}, nil
	case strings.Contains(c.model, "amazon.titan"):
		return titanRequest{
			InputText: prompt,
			TextGenerationConfig: titanGenerationConfig{
				MaxTokenCount: c.maxTokens,
				Temperature:   c.temperature,
				TopP:          c.topP,
			},
		}, nil
	default:
		return nil, clerrors.NewOracleUnavailable(fmt.Sprintf("unsupported model %q", c.model))
	}
}

// completionText unwraps the completion from the model family's response
// envelope.
func completionText(model string, body []byte) (string, error) {
	if strings.Contains(model, "anthropic") {
		var envelope anthropicResponse
		if err := json.Unmarshal(body, &envelope); err != nil {
			return "", clerrors.NewOracleUnavailable(fmt.Sprintf("malformed response envelope: %v", err)).WithCause(err)
		}
		if len(envelope.Content) == 0 || strings.TrimSpace(envelope.Content[0].Text) == "" {
			return "", clerrors.NewOracleUnavailable("response contained no completion text")
		}
		return strings.TrimSpace(envelope.Content[0].Text), nil
	}

	var envelope titanResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", clerrors.NewOracleUnavailable(fmt.Sprintf("malformed response envelope: %v", err)).WithCause(err)
	}
	if len(envelope.Results) == 0 || strings.TrimSpace(envelope.Results[0].OutputText) == "" {
		return "", clerrors.NewOracleUnavailable("response contained no completion text")
	}
	return strings.TrimSpace(envelope.Results[0].OutputText), nil
}

// ParseVerdict extracts the first JSON object spanning the completion text
// and decodes it. Prose around the object is tolerated; a missing or
// undecodable object is a recoverable oracle failure.
func ParseVerdict(text string) (models.AnalysisVerdict, error) {
	block, ok := extractJSONBlock(text)
	if !ok {
		return models.AnalysisVerdict{}, clerrors.NewOracleUnavailable("completion contained no JSON object")
	}
	var verdict models.AnalysisVerdict
	if err := json.Unmarshal([]byte(block), &verdict); err != nil {
		return models.AnalysisVerdict{}, clerrors.NewOracleUnavailable(fmt.Sprintf("verdict JSON invalid: %v", err)).WithCause(err)
	}
	verdict.ClampConfidence()
	return verdict, nil
}

// extractJSONBlock returns the first '{' through the last '}' when that span
// is valid JSON, retrying once with newlines flattened.
func extractJSONBlock(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	candidate := text[start : end+1]
	if json.Valid([]byte(candidate)) {
		return candidate, true
	}
	cleaned := strings.NewReplacer("\n", " ", "\r", " ").Replace(candidate)
	if json.Valid([]byte(cleaned)) {
		return cleaned, true
	}
	return "", false
}
