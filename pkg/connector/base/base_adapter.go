// Package base provides the foundational BaseAdapter that all ticketbridge
// source adapters embed. It carries the shared logger, rate limiting, retry
// policy, and health snapshot, so adapters only implement schema mapping and
// wire contracts.
package base

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/discordwell/ticketbridge/pkg/clients"
	"github.com/discordwell/ticketbridge/pkg/config"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/logger"
)

// HealthStatus is the adapter's last known health snapshot.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	CheckedAt time.Time              `json:"checked_at"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// BaseAdapter provides common functionality for all source adapters.
type BaseAdapter struct {
	name    string
	version string
	config  *config.BaseConfig
	logger  *zap.Logger

	rateLimiter clients.RateLimiter
	retryPolicy *RetryPolicy

	healthMu sync.RWMutex
	health   HealthStatus

	closed     bool
	closeMutex sync.Mutex
}

// NewBaseAdapter creates a base adapter with the given name and version.
func NewBaseAdapter(name, version string) *BaseAdapter {
	return &BaseAdapter{
		name:    name,
		version: version,
		logger:  logger.Get().With(zap.String("adapter", name)),
	}
}

// Initialize applies configuration: rate limiter and retry policy.
func (ba *BaseAdapter) Initialize(_ context.Context, cfg *config.BaseConfig) error {
	if cfg == nil {
		return errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ba.config = cfg

	if cfg.Reliability.RateLimitPerSec > 0 {
		ba.rateLimiter = clients.NewRateLimiter(
			cfg.Reliability.RateLimitPerSec,
			cfg.Reliability.RateLimitPerSec*2,
		)
	}

	retryAttempts := cfg.Reliability.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	retryDelay := cfg.Reliability.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	ba.retryPolicy = NewRetryPolicy(retryAttempts, retryDelay)

	ba.logger.Info("adapter initialized", zap.String("version", ba.version))
	return nil
}

// Name returns the adapter name
func (ba *BaseAdapter) Name() string {
	return ba.name
}

// Version returns the adapter version
func (ba *BaseAdapter) Version() string {
	return ba.version
}

// GetLogger returns the adapter logger
func (ba *BaseAdapter) GetLogger() *zap.Logger {
	return ba.logger
}

// GetConfig returns the adapter configuration
func (ba *BaseAdapter) GetConfig() *config.BaseConfig {
	return ba.config
}

// RateLimit enforces the configured rate limit, blocking if necessary.
// Returns immediately if no rate limiter is configured.
func (ba *BaseAdapter) RateLimit(ctx context.Context) error {
	if ba.rateLimiter == nil {
		return nil
	}
	return ba.rateLimiter.Wait(ctx)
}

// ExecuteWithRetry runs fn under the adapter's retry policy, retrying only
// retryable error types.
func (ba *BaseAdapter) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	return ba.retryPolicy.ExecuteWithCondition(ctx, fn, errors.IsRetryable)
}

// UpdateHealth records a health snapshot.
func (ba *BaseAdapter) UpdateHealth(healthy bool, details map[string]interface{}) {
	ba.healthMu.Lock()
	defer ba.healthMu.Unlock()
	ba.health = HealthStatus{
		Healthy:   healthy,
		CheckedAt: time.Now(),
		Details:   details,
	}
}

// Health returns the last recorded health snapshot.
func (ba *BaseAdapter) Health() HealthStatus {
	ba.healthMu.RLock()
	defer ba.healthMu.RUnlock()
	return ba.health
}

// Close shuts down the adapter.
func (ba *BaseAdapter) Close(_ context.Context) error {
	ba.closeMutex.Lock()
	defer ba.closeMutex.Unlock()

	if ba.closed {
		return nil
	}

	ba.closed = true
	ba.logger.Info("adapter closed")
	return nil
}

// IsClosed reports whether Close has been called.
func (ba *BaseAdapter) IsClosed() bool {
	ba.closeMutex.Lock()
	defer ba.closeMutex.Unlock()
	return ba.closed
}
