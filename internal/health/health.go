// Package health provides health checking and the probe endpoints mounted by
// the tool server's HTTP surface.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check result
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// CheckFunc produces one health check result.
type CheckFunc func(ctx context.Context) Check

// Run wraps a check body with the timing fields every Check carries.
func Run(name string, fn func(ctx context.Context) (Status, string)) CheckFunc {
	return func(ctx context.Context) Check {
		start := time.Now()
		status, message := fn(ctx)
		return Check{
			Name:      name,
			Status:    status,
			Message:   message,
			Timestamp: start,
			Duration:  time.Since(start),
		}
	}
}

// Checker performs health checks
type Checker struct {
	logger *zap.Logger
	checks []CheckFunc
}

// New creates a new health checker
func New(logger *zap.Logger, checks ...CheckFunc) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{logger: logger, checks: checks}
}

// Add registers one more check.
func (c *Checker) Add(check CheckFunc) {
	c.checks = append(c.checks, check)
}

// CheckAll performs all health checks. The overall status is the worst
// individual result: any unhealthy check makes the whole server unhealthy.
func (c *Checker) CheckAll(ctx context.Context) (Status, []Check) {
	checks := make([]Check, 0, len(c.checks))
	overall := StatusHealthy
	for _, fn := range c.checks {
		check := fn(ctx)
		checks = append(checks, check)

		switch check.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
			c.logger.Error("Health check failed",
				zap.String("check", check.Name),
				zap.String("message", check.Message),
				zap.Duration("duration", check.Duration),
			)
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
			c.logger.Warn("Health check degraded",
				zap.String("check", check.Name),
				zap.String("message", check.Message),
			)
		default:
			c.logger.Debug("Health check passed",
				zap.String("check", check.Name),
				zap.Duration("duration", check.Duration),
			)
		}
	}
	return overall, checks
}
