// Package memory provides in-memory adapters for the domain store
// interfaces. Thread-safe for concurrent access; suited to development,
// testing, and single-node deployments without persistence.
package memory

import (
	"context"
	"sync"

	"github.com/railguard-io/railguard/internal/domain/policy"
)

// PolicyStore implements policy.Store with an in-memory map.
type PolicyStore struct {
	policies map[string]*policy.Policy // ID -> Policy
	byName   map[string]string         // Name -> ID
	mu       sync.RWMutex
}

// NewPolicyStore creates a new in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		policies: make(map[string]*policy.Policy),
		byName:   make(map[string]string),
	}
}

// Create inserts a new policy. Returns policy.ErrDuplicateName when the
// name is already taken.
func (s *PolicyStore) Create(ctx context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[p.Name]; exists {
		return policy.ErrDuplicateName
	}
	s.policies[p.ID] = copyPolicy(p)
	s.byName[p.Name] = p.ID
	return nil
}

// Get returns a policy by ID.
func (s *PolicyStore) Get(ctx context.Context, id string) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, policy.ErrPolicyNotFound
	}
	return copyPolicy(p), nil
}

// GetByName returns a policy by its unique name.
func (s *PolicyStore) GetByName(ctx context.Context, name string) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[name]
	if !ok {
		return nil, policy.ErrPolicyNotFound
	}
	return copyPolicy(s.policies[id]), nil
}

// Update replaces the stored policy with the same ID. A rename keeps the
// name index consistent and rejects collisions with other policies.
func (s *PolicyStore) Update(ctx context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.policies[p.ID]
	if !ok {
		return policy.ErrPolicyNotFound
	}
	if p.Name != existing.Name {
		if _, taken := s.byName[p.Name]; taken {
			return policy.ErrDuplicateName
		}
		delete(s.byName, existing.Name)
		s.byName[p.Name] = p.ID
	}
	s.policies[p.ID] = copyPolicy(p)
	return nil
}

// Delete removes a policy by ID.
func (s *PolicyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[id]
	if !ok {
		return policy.ErrPolicyNotFound
	}
	delete(s.byName, p.Name)
	delete(s.policies, id)
	return nil
}

// List returns all policies.
func (s *PolicyStore) List(ctx context.Context) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]policy.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		result = append(result, *copyPolicy(p))
	}
	return result, nil
}

// copyPolicy creates a deep copy so callers can never mutate stored state.
func copyPolicy(p *policy.Policy) *policy.Policy {
	cp := *p
	cp.GuardrailsAdd = append([]string(nil), p.GuardrailsAdd...)
	cp.GuardrailsRemove = append([]string(nil), p.GuardrailsRemove...)
	return &cp
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)
