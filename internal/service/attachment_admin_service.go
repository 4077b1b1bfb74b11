package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/railguard-io/railguard/internal/domain/policy"
)

// AttachmentAdminService provides CRUD operations on policy attachments.
// Create validates that the referenced policy exists; every mutation
// invalidates the resolver cache.
type AttachmentAdminService struct {
	attachments policy.AttachmentStore
	policies    policy.Store
	resolver    *ResolverService
	logger      *slog.Logger
}

// NewAttachmentAdminService creates a new AttachmentAdminService.
func NewAttachmentAdminService(
	attachments policy.AttachmentStore,
	policies policy.Store,
	resolver *ResolverService,
	logger *slog.Logger,
) *AttachmentAdminService {
	return &AttachmentAdminService{
		attachments: attachments,
		policies:    policies,
		resolver:    resolver,
		logger:      logger,
	}
}

// List returns all attachments.
func (s *AttachmentAdminService) List(ctx context.Context) ([]policy.Attachment, error) {
	return s.attachments.List(ctx)
}

// Get returns a single attachment by ID.
func (s *AttachmentAdminService) Get(ctx context.Context, id string) (*policy.Attachment, error) {
	return s.attachments.Get(ctx, id)
}

// Create creates a new attachment. The referenced policy must exist;
// a missing policy surfaces as policy.ErrPolicyNotFound so the admin
// layer can map it to a 404.
func (s *AttachmentAdminService) Create(ctx context.Context, a *policy.Attachment) (*policy.Attachment, error) {
	if a.PolicyName == "" {
		return nil, policy.NewValidationError("policy_name", "is required")
	}
	if _, err := s.policies.GetByName(ctx, a.PolicyName); err != nil {
		return nil, err
	}
	if a.Scope == "" {
		a.Scope = policy.ScopeGlobal
	}

	now := time.Now().UTC()
	a.ID = uuid.New().String()
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := s.attachments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}

	s.resolver.Invalidate()
	s.logger.Info("attachment created",
		"id", a.ID,
		"policy", a.PolicyName,
		"scope", a.Scope,
		"teams", len(a.Teams),
		"keys", len(a.Keys),
		"models", len(a.Models),
	)
	return s.attachments.Get(ctx, a.ID)
}

// Delete removes an attachment by ID.
func (s *AttachmentAdminService) Delete(ctx context.Context, id string) error {
	if err := s.attachments.Delete(ctx, id); err != nil {
		return err
	}
	s.resolver.Invalidate()
	s.logger.Info("attachment deleted", "id", id)
	return nil
}
