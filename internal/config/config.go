// Package config provides configuration management for the analysis engine,
// the monitor, and the remediation tool server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clarityops/clarity/internal/security"
)

// Config holds all configuration for the engine and its collaborators.
type Config struct {
	// AI Oracle Configuration
	OracleURL         string        `json:"oracle_url"`
	OracleAPIKey      string        `json:"oracle_api_key,omitempty"` // Not stored in files, from env only
	OracleModel       string        `json:"oracle_model"`
	OracleMaxTokens   int           `json:"oracle_max_tokens"`
	OracleTemperature float64       `json:"oracle_temperature"`
	OracleTopP        float64       `json:"oracle_top_p"`
	OracleTimeout     time.Duration `json:"oracle_timeout"`

	// Remediation Tool Server
	ToolServerHost   string        `json:"tool_server_host"`
	ToolServerPort   int           `json:"tool_server_port"`
	ToolTimeout      time.Duration `json:"tool_timeout"`
	CatalogPath      string        `json:"catalog_path,omitempty"` // Optional YAML catalog override
	DefaultComponent string        `json:"default_component"`

	// Trend Monitoring
	MonitorInterval   time.Duration `json:"monitor_interval"`
	WindowDuration    time.Duration `json:"window_duration"` // 0 = whole session timeline
	RiseThreshold     float64       `json:"rise_threshold"`
	RecoveryThreshold float64       `json:"recovery_threshold"`
	MinRiseDelta      float64       `json:"min_rise_delta"`

	// HTTP Client Configuration
	Timeout         time.Duration `json:"timeout"`
	MaxRetries      int           `json:"max_retries"`
	RetryWaitMin    time.Duration `json:"retry_wait_min"`
	RetryWaitMax    time.Duration `json:"retry_wait_max"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	IdleConnTimeout time.Duration `json:"idle_conn_timeout"`

	// Rate Limiting
	RateLimit       int  `json:"rate_limit"` // requests per second
	RateLimitBurst  int  `json:"rate_limit_burst"`
	EnableRateLimit bool `json:"enable_rate_limit"`

	// Security
	TLSVerify bool `json:"tls_verify"`

	// Observability
	EnableTracing   bool `json:"enable_tracing"`
	EnableAuditLog  bool `json:"enable_audit_log"`
	MetricsEndpoint bool `json:"metrics_endpoint"`

	// Lifecycle
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // json or console
}

// Load configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := &Config{
		// Oracle defaults
		OracleModel:       "anthropic.claude-3-sonnet",
		OracleMaxTokens:   4096,
		OracleTemperature: 0.5,
		OracleTopP:        0.9,
		OracleTimeout:     30 * time.Second,
		// Tool server defaults
		ToolServerHost:   "127.0.0.1",
		ToolServerPort:   8001,
		ToolTimeout:      10 * time.Second,
		DefaultComponent: "auth-service",
		// Monitor defaults
		MonitorInterval:   30 * time.Second,
		WindowDuration:    5 * time.Minute,
		RiseThreshold:     0.5,
		RecoveryThreshold: 0.3,
		MinRiseDelta:      0.05,
		// HTTP client defaults
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    1 * time.Second,
		RetryWaitMax:    30 * time.Second,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
		RateLimit:       100,
		RateLimitBurst:  20,
		EnableRateLimit: true,
		TLSVerify:       true,
		// Observability defaults
		EnableTracing:   false,
		EnableAuditLog:  true,
		MetricsEndpoint: true,
		// Lifecycle
		ShutdownTimeout: 10 * time.Second,
		// Logging
		LogLevel:  "info",
		LogFormat: "json",
	}

	// Try to load from config file if specified
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	loadFromEnv(cfg)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	// Validate and clean the file path to prevent path traversal
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid file path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return json.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("ORACLE_URL"); v != "" {
		cfg.OracleURL = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.OracleAPIKey = v
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		cfg.OracleModel = v
	}
	if v := os.Getenv("ORACLE_MAX_TOKENS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.OracleMaxTokens = n
		}
	}
	if v := os.Getenv("ORACLE_TEMPERATURE"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			cfg.OracleTemperature = f
		}
	}
	if v := os.Getenv("ORACLE_TOP_P"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			cfg.OracleTopP = f
		}
	}
	if v := os.Getenv("ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OracleTimeout = d
		}
	}
	if v := os.Getenv("TOOL_SERVER_HOST"); v != "" {
		cfg.ToolServerHost = v
	}
	if v := os.Getenv("TOOL_SERVER_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil {
			cfg.ToolServerPort = p
		}
	}
	if v := os.Getenv("TOOL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ToolTimeout = d
		}
	}
	if v := os.Getenv("CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("DEFAULT_COMPONENT"); v != "" {
		cfg.DefaultComponent = v
	}
	if v := os.Getenv("MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MonitorInterval = d
		}
	}
	if v := os.Getenv("WINDOW_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WindowDuration = d
		}
	}
	if v := os.Getenv("RISE_THRESHOLD"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			cfg.RiseThreshold = f
		}
	}
	if v := os.Getenv("RECOVERY_THRESHOLD"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			cfg.RecoveryThreshold = f
		}
	}
	if v := os.Getenv("MIN_RISE_DELTA"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			cfg.MinRiseDelta = f
		}
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		var retries int
		if _, err := fmt.Sscanf(v, "%d", &retries); err == nil {
			cfg.MaxRetries = retries
		}
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		var limit int
		if _, err := fmt.Sscanf(v, "%d", &limit); err == nil {
			cfg.RateLimit = limit
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		var burst int
		if _, err := fmt.Sscanf(v, "%d", &burst); err == nil {
			cfg.RateLimitBurst = burst
		}
	}
	if v := os.Getenv("ENABLE_RATE_LIMIT"); v != "" {
		cfg.EnableRateLimit = v == "true" || v == "1"
	}
	if v := os.Getenv("TLS_VERIFY"); v != "" {
		cfg.TLSVerify = v == "true" || v == "1"
	}
	if v := os.Getenv("ENABLE_TRACING"); v != "" {
		cfg.EnableTracing = v == "true" || v == "1"
	}
	if v := os.Getenv("ENABLE_AUDIT_LOG"); v != "" {
		cfg.EnableAuditLog = v == "true" || v == "1"
	}
	if v := os.Getenv("METRICS_ENDPOINT"); v != "" {
		cfg.MetricsEndpoint = v == "true" || v == "1"
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

// Validate checks if the configuration is valid. All problems are collected
// so an operator can fix the environment in one pass.
func (c *Config) Validate() error {
	var problems []string

	if c.OracleTimeout <= 0 {
		problems = append(problems, "oracle_timeout must be positive")
	}
	if c.OracleMaxTokens <= 0 {
		problems = append(problems, "oracle_max_tokens must be positive")
	}
	if c.ToolServerPort <= 0 || c.ToolServerPort > 65535 {
		problems = append(problems, "tool_server_port must be in (0, 65535]")
	}
	if c.MonitorInterval <= 0 {
		problems = append(problems, "monitor_interval must be positive")
	}
	if c.RiseThreshold <= 0 || c.RiseThreshold > 1 {
		problems = append(problems, "rise_threshold must be in (0, 1]")
	}
	if c.RecoveryThreshold < 0 || c.RecoveryThreshold >= c.RiseThreshold {
		problems = append(problems, "recovery_threshold must be non-negative and below rise_threshold")
	}
	if c.MinRiseDelta < 0 {
		problems = append(problems, "min_rise_delta must be non-negative")
	}
	if c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max_retries must be non-negative")
	}
	if c.RateLimit <= 0 && c.EnableRateLimit {
		problems = append(problems, "rate_limit must be positive when rate limiting is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		problems = append(problems, fmt.Sprintf("invalid log level: %s", c.LogLevel))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// RequireOracle validates the fields the oracle client needs. Commands that
// never call the oracle skip this.
func (c *Config) RequireOracle() error {
	if c.OracleURL == "" {
		return errors.New("ORACLE_URL is required")
	}
	if c.OracleAPIKey == "" {
		return errors.New("ORACLE_API_KEY is required")
	}
	return nil
}

// ToolServerAddr returns the host:port of the remediation tool server.
func (c *Config) ToolServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ToolServerHost, c.ToolServerPort)
}

// ToolServerURL returns the base URL of the remediation tool server.
func (c *Config) ToolServerURL() string {
	return fmt.Sprintf("http://%s", c.ToolServerAddr())
}

// Redact returns a copy of the config with sensitive data removed
func (c *Config) Redact() *Config {
	redacted := *c
	redacted.OracleAPIKey = security.MaskAPIKey(redacted.OracleAPIKey)
	return &redacted
}
