package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/MrWong99/greffier/pkg/llmerr"
)

// ProviderFault reports whether err says something about the health of the
// provider that produced it. Rejected credentials, filtered content and
// input validation failures are the caller's problem and do not count.
func ProviderFault(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch llmerr.CodeOf(err) {
	case llmerr.CredentialMissing, llmerr.CredentialInvalid,
		llmerr.ContentFiltered, llmerr.InputTooShort, llmerr.OutputTooLarge,
		llmerr.ParseError:
		return false
	}
	return true
}

// Registry hands out one [CircuitBreaker] per provider name, created on
// first use from a shared template.
type Registry struct {
	template CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a [Registry]. The template's Name is ignored; a nil
// IsFailure defaults to [ProviderFault].
func NewRegistry(template CircuitBreakerConfig) *Registry {
	if template.IsFailure == nil {
		template.IsFailure = ProviderFault
	}
	return &Registry{
		template: template,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it if needed.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cfg := r.template
	cfg.Name = name
	cb := NewCircuitBreaker(cfg)
	r.breakers[name] = cb
	return cb
}

// BreakerState pairs a provider name with its breaker state.
type BreakerState struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// States lists every known breaker, sorted by name.
func (r *Registry) States() []BreakerState {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for n := range r.breakers {
		names = append(names, n)
	}
	r.mu.Unlock()

	sort.Strings(names)
	out := make([]BreakerState, 0, len(names))
	for _, n := range names {
		out = append(out, BreakerState{Name: n, State: r.Get(n).State().String()})
	}
	return out
}
