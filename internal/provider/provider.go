// Package provider defines the text-generation backend interface and the
// registry the orchestrator resolves model IDs against.
package provider

import (
	"context"
	"slices"
	"sync"
)

// Request is a single-turn generation request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completion is the text and token usage of one generation.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Provider is one invokable model.
type Provider interface {
	// ID returns the model identifier the provider answers for.
	ID() string
	// Invoke generates a completion. Errors are *Error values.
	Invoke(ctx context.Context, req Request) (*Completion, error)
}

// Registry holds the available providers keyed by model ID.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry, replacing any with the same ID.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get returns a provider by ID.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// IDs returns all registered model IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Configured returns the IDs whose providers can actually be called.
func (r *Registry) Configured() []string {
	var out []string
	for _, id := range r.IDs() {
		p, _ := r.Get(id)
		if _, stub := p.(*unconfigured); !stub {
			out = append(out, id)
		}
	}
	return out
}

type unconfigured struct {
	id     string
	reason string
}

// Unconfigured returns a provider that fails every call with an unavailable
// error. It stands in for models whose credentials are missing so the
// failure surfaces per call rather than at startup.
func Unconfigured(id, reason string) Provider {
	return &unconfigured{id: id, reason: reason}
}

func (u *unconfigured) ID() string { return u.id }

func (u *unconfigured) Invoke(context.Context, Request) (*Completion, error) {
	return nil, Unavailable(u.id, u.reason)
}
