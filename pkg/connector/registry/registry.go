// Package registry manages source adapter registration and instantiation.
// Adapters register themselves from init functions; callers blank-import the
// adapter packages they want available.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/discordwell/ticketbridge/pkg/config"
	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/logger"
)

// SourceFactory creates a source adapter instance from a BaseConfig.
type SourceFactory func(cfg *config.BaseConfig) (core.Source, error)

// Registry manages adapter registration and instantiation
type Registry struct {
	sources map[string]SourceFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SourceFactory),
		logger:  logger.Get().With(zap.String("component", "adapter_registry")),
	}
}

// RegisterSource registers a source adapter factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source adapter %s already registered", name))
	}

	r.sources[name] = factory
	r.logger.Info("source adapter registered", zap.String("name", name))
	return nil
}

// CreateSource creates a source adapter instance
func (r *Registry) CreateSource(name string, cfg *config.BaseConfig) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source adapter %s not found", name))
	}

	return factory(cfg)
}

// ListSources returns the registered source names in sorted order
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterSource registers a source adapter factory in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// CreateSource creates a source adapter from the global registry
func CreateSource(name string, cfg *config.BaseConfig) (core.Source, error) {
	return globalRegistry.CreateSource(name, cfg)
}

// ListSources lists source adapters in the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}
