package memory

import (
	"sort"
	"sync"

	"github.com/railguard-io/railguard/internal/domain/guardrail"
)

// GuardrailRegistry implements guardrail.Registry with an in-memory map.
// Capabilities are registered at process startup; the registry is passed
// by reference into the builder and executor.
type GuardrailRegistry struct {
	capabilities map[string]guardrail.Capability
	mu           sync.RWMutex
}

// NewGuardrailRegistry creates an empty registry.
func NewGuardrailRegistry() *GuardrailRegistry {
	return &GuardrailRegistry{
		capabilities: make(map[string]guardrail.Capability),
	}
}

// Register adds a capability under the given name, replacing any
// previous registration.
func (r *GuardrailRegistry) Register(name string, c guardrail.Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[name] = c
}

// Lookup returns the capability for the given name.
func (r *GuardrailRegistry) Lookup(name string) (guardrail.Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.capabilities[name]
	if !ok {
		return nil, guardrail.ErrGuardrailNotFound
	}
	return c, nil
}

// Names returns all registered guardrail names, sorted.
func (r *GuardrailRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile-time interface verification.
var _ guardrail.Registry = (*GuardrailRegistry)(nil)
