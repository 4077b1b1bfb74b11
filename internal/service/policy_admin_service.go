package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/railguard-io/railguard/internal/adapter/outbound/cel"
	"github.com/railguard-io/railguard/internal/domain/policy"
)

// PolicyAdminService provides CRUD operations on policies with
// validation: condition syntax, inherit references, cycle rejection,
// and delete protection for referenced policies. After every mutation
// it invalidates the resolver cache.
type PolicyAdminService struct {
	store       policy.Store
	attachments policy.AttachmentStore
	resolver    *ResolverService
	conditions  *cel.ConditionValidator
	logger      *slog.Logger
}

// NewPolicyAdminService creates a new PolicyAdminService.
func NewPolicyAdminService(
	store policy.Store,
	attachments policy.AttachmentStore,
	resolver *ResolverService,
	conditions *cel.ConditionValidator,
	logger *slog.Logger,
) *PolicyAdminService {
	return &PolicyAdminService{
		store:       store,
		attachments: attachments,
		resolver:    resolver,
		conditions:  conditions,
		logger:      logger,
	}
}

// List returns all policies from the store.
func (s *PolicyAdminService) List(ctx context.Context) ([]policy.Policy, error) {
	return s.store.List(ctx)
}

// Get returns a single policy by ID.
func (s *PolicyAdminService) Get(ctx context.Context, id string) (*policy.Policy, error) {
	return s.store.Get(ctx, id)
}

// Create creates a new policy. Generates a UUID, sets timestamps, and
// validates the name, condition syntax, and inheritance chain before
// persisting.
func (s *PolicyAdminService) Create(ctx context.Context, p *policy.Policy) (*policy.Policy, error) {
	if p.Name == "" {
		return nil, policy.NewValidationError("name", "is required")
	}
	if err := s.validateCondition(p.Condition); err != nil {
		return nil, err
	}
	if err := s.validateInheritance(ctx, p.Name, p.Inherit); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create policy: %w", err)
	}

	s.resolver.Invalidate()
	s.logger.Info("policy created",
		"id", p.ID,
		"name", p.Name,
		"inherit", p.Inherit,
		"guardrails_add", len(p.GuardrailsAdd),
	)
	return s.store.Get(ctx, p.ID)
}

// Update applies a partial update to an existing policy. The name is
// immutable because attachments reference policies by name. Preserves
// ID and CreatedAt, re-validates condition and inheritance, updates the
// timestamp, and invalidates the resolver cache.
func (s *PolicyAdminService) Update(ctx context.Context, id string, u policy.Update) (*policy.Policy, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	u.Apply(&updated)

	if err := s.validateCondition(updated.Condition); err != nil {
		return nil, err
	}
	if err := s.validateInheritance(ctx, updated.Name, updated.Inherit); err != nil {
		return nil, err
	}

	updated.ID = existing.ID
	updated.Name = existing.Name
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	updated.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update policy: %w", err)
	}

	s.resolver.Invalidate()
	s.logger.Info("policy updated", "id", id, "name", updated.Name)
	return s.store.Get(ctx, id)
}

// Delete removes a policy by ID. Deletion is rejected with
// policy.ErrReferencedByAttachment while any attachment still points at
// the policy, and with a validation error while another policy inherits
// from it.
func (s *PolicyAdminService) Delete(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	refs, err := s.attachments.ListByPolicy(ctx, existing.Name)
	if err != nil {
		return fmt.Errorf("list attachments for %q: %w", existing.Name, err)
	}
	if len(refs) > 0 {
		return fmt.Errorf("policy %q has %d attachment(s): %w",
			existing.Name, len(refs), policy.ErrReferencedByAttachment)
	}

	all, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list policies: %w", err)
	}
	for _, p := range all {
		if p.Inherit == existing.Name {
			return policy.NewValidationError("inherit",
				fmt.Sprintf("policy %q inherits from %q", p.Name, existing.Name))
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}

	s.resolver.Invalidate()
	s.logger.Info("policy deleted", "id", id, "name", existing.Name)
	return nil
}

// validateCondition checks the opaque condition expression's syntax.
func (s *PolicyAdminService) validateCondition(expr string) error {
	if s.conditions == nil || expr == "" {
		return nil
	}
	if err := s.conditions.Validate(expr); err != nil {
		return policy.NewValidationError("condition", err.Error())
	}
	return nil
}

// validateInheritance checks that inherit, when set, names an existing
// policy and that following the chain from it never reaches name again
// within the bounded depth.
func (s *PolicyAdminService) validateInheritance(ctx context.Context, name, inherit string) error {
	if inherit == "" {
		return nil
	}
	if inherit == name {
		return &policy.CycleError{Chain: []string{name, name}}
	}

	walked := []string{name}
	visited := map[string]bool{name: true}

	current := inherit
	for current != "" {
		if visited[current] || len(walked) >= maxInheritDepth {
			return &policy.CycleError{Chain: append(walked, current)}
		}
		visited[current] = true
		walked = append(walked, current)

		parent, err := s.store.GetByName(ctx, current)
		if err != nil {
			if errors.Is(err, policy.ErrPolicyNotFound) {
				return policy.NewValidationError("inherit",
					fmt.Sprintf("names unknown policy %q", current))
			}
			return fmt.Errorf("get policy %q: %w", current, err)
		}
		current = parent.Inherit
	}
	return nil
}
