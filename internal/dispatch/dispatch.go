// Package dispatch is the consuming side of the remediation tool server: it
// fetches the live tool catalog and submits selected commands for execution.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/client"
	"github.com/clarityops/clarity/internal/config"
	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/metrics"
	"github.com/clarityops/clarity/internal/models"
	"github.com/clarityops/clarity/internal/remedy"
)

// Result is the tool server's record of one accepted command.
type Result struct {
	Tool            string `json:"tool"`
	CommandText     string `json:"command_text"`
	TargetComponent string `json:"target_component"`
}

type catalogEnvelope struct {
	Tools remedy.Catalog `json:"tools"`
}

// Dispatcher calls the tool server's HTTP surface. An unreachable server is
// always recoverable: callers degrade to suggested-only commands.
type Dispatcher struct {
	http    *client.Client
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a dispatcher for the tool server at baseURL, typically
// cfg.ToolServerURL(). The server is local and unauthenticated.
func New(baseURL string, cfg *config.Config, logger *zap.Logger, recorder *metrics.Metrics, version string) (*Dispatcher, error) {
	httpClient, err := client.New(baseURL, nil, cfg, logger, recorder, version)
	if err != nil {
		return nil, err
	}
	timeout := cfg.ToolTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{http: httpClient, timeout: timeout, logger: logger}, nil
}

// FetchCatalog retrieves the server's live tool catalog.
func (d *Dispatcher) FetchCatalog(ctx context.Context) (remedy.Catalog, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.http.Do(ctx, &client.Request{Method: http.MethodGet, Path: "/tools"})
	if err != nil {
		return nil, clerrors.NewToolServerUnavailable(err.Error()).WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, clerrors.NewToolServerUnavailable(fmt.Sprintf("catalog request returned %d", resp.StatusCode))
	}

	var envelope catalogEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, clerrors.NewToolServerUnavailable(fmt.Sprintf("catalog response malformed: %v", err)).WithCause(err)
	}
	if len(envelope.Tools) == 0 {
		return nil, clerrors.NewToolServerUnavailable("catalog response listed no tools")
	}

	d.logger.Debug("Fetched remediation catalog", zap.Int("tools", len(envelope.Tools)))
	return envelope.Tools, nil
}

// Dispatch submits the selected command for execution and returns the
// server's acknowledgment.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd models.RemediationCommand) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req := &client.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/tools/%s", url.PathEscape(cmd.ToolName)),
		Body: map[string]interface{}{
			"parameters": map[string]string{
				"service_name": cmd.TargetComponent,
			},
		},
	}

	resp, err := d.http.Do(ctx, req)
	if err != nil {
		return Result{}, clerrors.NewToolServerUnavailable(err.Error()).WithCause(err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Result{}, clerrors.NewToolNotFound(cmd.ToolName)
	case resp.StatusCode >= 400:
		return Result{}, clerrors.NewToolServerUnavailable(fmt.Sprintf("tool %s returned %d", cmd.ToolName, resp.StatusCode))
	}

	var result Result
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return Result{}, clerrors.NewToolServerUnavailable(fmt.Sprintf("dispatch response malformed: %v", err)).WithCause(err)
	}

	d.logger.Info("Remediation dispatched",
		zap.String("tool", result.Tool),
		zap.String("component", result.TargetComponent),
	)
	return result, nil
}

// Close releases idle transport connections.
func (d *Dispatcher) Close() error {
	return d.http.Close()
}
