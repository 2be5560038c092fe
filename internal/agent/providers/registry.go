package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quarryhq/quarry/internal/secrets"
)

// Factory builds a provider instance. Called once per session; the
// secret lookup happens here so a missing credential surfaces before
// any request.
type Factory func(store secrets.Store) (Provider, error)

// Registry maps provider names to factories. An explicit value, not a
// package global, so tests and sub-agent runners can compose their
// own.
type Registry struct {
	store secrets.Store

	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with every built-in adapter
// registered.
func NewRegistry(store secrets.Store) *Registry {
	r := &Registry{
		store:     store,
		factories: make(map[string]Factory),
	}
	r.Register("anthropic", NewAnthropic)
	r.Register("openai", NewOpenAI)
	r.Register("deepseek", NewDeepSeek)
	r.Register("xai", NewXAI)
	r.Register("google", NewGoogle)
	r.Register("bedrock", NewBedrock)
	return r
}

// Register installs a factory. Idempotent by name: re-registering a
// name replaces the previous factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Lookup returns the factory for name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Build constructs the named provider against the registry's secret
// store.
func (r *Registry) Build(name string) (Provider, error) {
	factory, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return factory(r.store)
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
