package model

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/switchboard/session"
)

// Registry maps provider names to factories. Thread-safe for concurrent
// access.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named provider factory.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return ErrEmptyProviderName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}

	r.factories[name] = f
	return nil
}

// Replace swaps the factory of an existing provider.
func (r *Registry) Replace(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	r.factories[name] = f
	return nil
}

// Unregister removes a provider.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	delete(r.factories, name)
	return nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider creates the provider named by cfg.Provider.
func (r *Registry) Provider(cfg *Config) (Provider, error) {
	r.mu.RLock()
	f, exists := r.factories[cfg.Provider]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, cfg.Provider)
	}
	return f(cfg)
}

// Build merges cfg over DefaultConfig and returns a Conversation backed by
// the configured provider and a fresh session memory. Build satisfies
// Builder.
func (r *Registry) Build(cfg Config) (Session, error) {
	merged := DefaultConfig()
	merged.Merge(&cfg)

	memory, err := session.New(&merged.Session)
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	p, err := r.Provider(&merged)
	if err != nil {
		return nil, err
	}

	return NewConversation(p, memory), nil
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the default registry. Provider packages call
// it from init.
func Register(name string, f Factory) error {
	return defaultRegistry.Register(name, f)
}

// Build constructs a Session through the default registry.
func Build(cfg Config) (Session, error) {
	return defaultRegistry.Build(cfg)
}

// Providers lists the providers in the default registry.
func Providers() []string {
	return defaultRegistry.Names()
}
