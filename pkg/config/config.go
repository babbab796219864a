// Package config provides the unified configuration system for ticketbridge.
// It defines a single BaseConfig structure that all source adapters use,
// ensuring consistent configuration across the engine.
//
// The configuration is organized into logical sections:
//   - Performance: Page sizes, buffer sizes, hydration settings
//   - Timeouts: Connection and request timeouts
//   - Reliability: Retry logic, rate limiting, backoff policy
//   - Security: Authentication type and credentials
//   - Observability: Metrics and logging
package config

import (
	"time"

	"github.com/discordwell/ticketbridge/pkg/errors"
)

// BaseConfig is the single unified configuration structure that all source
// adapters use. Credentials live in Security.Credentials; each adapter
// documents the keys it expects.
type BaseConfig struct {
	// Name identifies the adapter instance
	Name string `yaml:"name" json:"name"`
	// Type specifies the source type (e.g. "zendesk", "freshdesk", "intercom")
	Type string `yaml:"type" json:"type"`
	// OutputDir is the directory canonical JSONL files are written to
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	Performance   PerformanceConfig   `yaml:"performance" json:"performance"`
	Timeouts      TimeoutConfig       `yaml:"timeouts" json:"timeouts"`
	Reliability   ReliabilityConfig   `yaml:"reliability" json:"reliability"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// PerformanceConfig contains throughput-related settings.
type PerformanceConfig struct {
	// PageSize controls the number of records requested per API page
	PageSize int `yaml:"page_size" json:"page_size"`
	// BufferSize sets the size of the JSONL writer buffer
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
	// HydrateMessages controls whether ticket threads are fetched
	HydrateMessages bool `yaml:"hydrate_messages" json:"hydrate_messages"`
}

// TimeoutConfig contains timeout-related settings.
type TimeoutConfig struct {
	// Request timeout for individual API calls
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Idle timeout before closing inactive connections
	Idle time.Duration `yaml:"idle" json:"idle"`
}

// ReliabilityConfig contains rate limiting and retry settings.
// Backoff behavior is a per-adapter policy: some sources honor a reactive
// Retry-After, others impose a fixed delay before every request.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum retry attempts for transient failures
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RateLimitPerSec limits outbound requests per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateLimitDefault is the backoff used on 429 when Retry-After is absent
	RateLimitDefault time.Duration `yaml:"rate_limit_default" json:"rate_limit_default"`
	// MaxRateLimitRetries caps consecutive 429 retries within one request
	MaxRateLimitRetries int `yaml:"max_rate_limit_retries" json:"max_rate_limit_retries"`
	// PreRequestDelay imposes a fixed sleep before every request (0 = none)
	PreRequestDelay time.Duration `yaml:"pre_request_delay" json:"pre_request_delay"`
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	// AuthType specifies authentication method (token, basic, oauth2)
	AuthType string `yaml:"auth_type" json:"auth_type"`
	// Credentials stores authentication material (use env vars in production)
	Credentials map[string]string `yaml:"credentials" json:"credentials"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics activates prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewBaseConfig creates a config with production defaults for the given
// adapter name and source type.
func NewBaseConfig(name, sourceType string) *BaseConfig {
	return &BaseConfig{
		Name: name,
		Type: sourceType,
		Performance: PerformanceConfig{
			PageSize:        100,
			BufferSize:      64 * 1024,
			HydrateMessages: true,
		},
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
			Idle:       90 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:       3,
			RetryDelay:          time.Second,
			RateLimitDefault:    30 * time.Second,
			MaxRateLimitRetries: 5,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			LogLevel:      "info",
		},
	}
}

// Validate checks required fields and applies defaults for unset values.
func (c *BaseConfig) Validate() error {
	if c.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "adapter name is required")
	}
	if c.Type == "" {
		return errors.New(errors.ErrorTypeConfig, "source type is required")
	}

	if c.Performance.PageSize <= 0 {
		c.Performance.PageSize = 100
	}
	if c.Performance.BufferSize <= 0 {
		c.Performance.BufferSize = 64 * 1024
	}
	if c.Timeouts.Request <= 0 {
		c.Timeouts.Request = 30 * time.Second
	}
	if c.Reliability.RateLimitDefault <= 0 {
		c.Reliability.RateLimitDefault = 30 * time.Second
	}
	if c.Reliability.MaxRateLimitRetries <= 0 {
		c.Reliability.MaxRateLimitRetries = 5
	}

	return nil
}

// Credential returns a credential value by key, or an error if absent.
func (c *BaseConfig) Credential(key string) (string, error) {
	if c.Security.Credentials == nil {
		return "", errors.New(errors.ErrorTypeConfig, "credentials are required")
	}
	value, ok := c.Security.Credentials[key]
	if !ok || value == "" {
		return "", errors.Newf(errors.ErrorTypeConfig, "credential %q is required", key)
	}
	return value, nil
}
