package provider

import (
	"log/slog"
	"sync"

	"ragex/internal/errors"
)

// Registry resolves provider names to implementations, falling back to the
// configured default when a name is unknown.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
	logger      *slog.Logger
}

// NewRegistry creates an empty registry with the given default provider name.
func NewRegistry(defaultName string, logger *slog.Logger) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultName: defaultName,
		logger:      logger,
	}
}

// Register adds or replaces a provider under name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Resolve returns the provider for name, the default provider for an empty
// or unknown name, and an error only when neither is registered.
func (r *Registry) Resolve(name string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name != "" {
		if p, ok := r.providers[name]; ok {
			return p, name, nil
		}
		r.logger.Warn("Unknown provider, falling back to default",
			"requested", name,
			"default", r.defaultName)
	}

	if p, ok := r.providers[r.defaultName]; ok {
		return p, r.defaultName, nil
	}
	return nil, "", errors.Newf(errors.UnknownProvider,
		"no provider registered under %q and no default available", name)
}

// DefaultName returns the configured default provider name.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
