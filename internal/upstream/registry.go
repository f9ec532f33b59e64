package upstream

import (
	"fmt"
	"sync"
)

// Registry maps an upstream label (the catalog's tier-derived vendor name:
// "hf", "ollama", "ollamafreeapi", "openai", "anthropic", "deepseek",
// "gemini", "xai", "openrouter") to the Adapter that serves it. Every
// upstream currently speaks the OpenAI-compatible wire format, so in
// practice most labels resolve to the same underlying adapter instance,
// but the registry keeps the door open for a vendor that needs a
// different one without touching the pipeline.
type Registry struct {
	mu              sync.RWMutex
	adapters        map[string]Adapter
	defaultUpstream string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register associates upstream with adapter, replacing any prior
// registration.
func (r *Registry) Register(upstream string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[upstream] = adapter
	if r.defaultUpstream == "" {
		r.defaultUpstream = upstream
	}
}

// Get returns the adapter registered for upstream.
func (r *Registry) Get(upstream string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[upstream]
	return a, ok
}

// Default returns the registry's default adapter, if one has been set.
func (r *Registry) Default() (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultUpstream == "" {
		return nil, false
	}
	a, ok := r.adapters[r.defaultUpstream]
	return a, ok
}

// SetDefault designates upstream as the fallback adapter used by
// Resolve when no specific registration matches.
func (r *Registry) SetDefault(upstream string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[upstream]; !ok {
		return fmt.Errorf("upstream: cannot set default, %q is not registered", upstream)
	}
	r.defaultUpstream = upstream
	return nil
}

// List returns the registered upstream labels.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	return out
}

// Unregister removes upstream's adapter registration.
func (r *Registry) Unregister(upstream string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, upstream)
	if r.defaultUpstream == upstream {
		r.defaultUpstream = ""
	}
}

// Len reports how many upstreams are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Resolve returns the adapter for upstream, falling back to the registry's
// default adapter when upstream has no specific registration — every
// vendor label defaults to the shared OpenAI-compatible adapter unless a
// future vendor is registered individually.
func (r *Registry) Resolve(upstream string) (Adapter, error) {
	if a, ok := r.Get(upstream); ok {
		return a, nil
	}
	if a, ok := r.Default(); ok {
		return a, nil
	}
	return nil, fmt.Errorf("upstream: no adapter registered for %q and no default set", upstream)
}

// NewDefaultRegistry builds a Registry where every known vendor label
// resolves to a single resilient OpenAI-compatible adapter instance.
func NewDefaultRegistry(cfg ResilientConfig) *Registry {
	shared := NewResilientAdapter(NewOpenAICompatAdapter(nil), cfg)
	reg := NewRegistry()
	for _, upstream := range []string{
		"hf", "ollamafreeapi", "ollama", "deepseek", "gemini",
		"openai", "xai", "anthropic", "openrouter",
	} {
		reg.Register(upstream, shared)
	}
	_ = reg.SetDefault("openrouter")
	return reg
}
