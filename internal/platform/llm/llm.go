package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNoProviders is returned when a selection resolves to no usable provider.
var ErrNoProviders = errors.New("no llm providers configured")

type Request struct {
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   int
}

type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is one external LLM endpoint answering plain text prompts.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("nil provider")
	}
	name := normalizeName(p.Name())
	if name == "" {
		return fmt.Errorf("provider Name() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider already registered: %s", name)
	}
	r.providers[name] = p
	return nil
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[normalizeName(name)]
	return p, ok
}

// Names returns registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Select resolves names to providers. An empty selection means every provider.
// Unknown names are reported back, not treated as errors.
func (r *Registry) Select(names []string) (selected []Provider, unknown []string) {
	if len(names) == 0 {
		names = r.Names()
	}
	seen := map[string]bool{}
	for _, n := range names {
		key := normalizeName(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		p, ok := r.Get(key)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		selected = append(selected, p)
	}
	return selected, unknown
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
