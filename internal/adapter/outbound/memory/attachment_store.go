package memory

import (
	"context"
	"sync"

	"github.com/railguard-io/railguard/internal/domain/policy"
)

// AttachmentStore implements policy.AttachmentStore with an in-memory map.
type AttachmentStore struct {
	attachments map[string]*policy.Attachment // ID -> Attachment
	mu          sync.RWMutex
}

// NewAttachmentStore creates a new in-memory attachment store.
func NewAttachmentStore() *AttachmentStore {
	return &AttachmentStore{
		attachments: make(map[string]*policy.Attachment),
	}
}

// Create inserts a new attachment.
func (s *AttachmentStore) Create(ctx context.Context, a *policy.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attachments[a.ID] = copyAttachment(a)
	return nil
}

// Get returns an attachment by ID.
func (s *AttachmentStore) Get(ctx context.Context, id string) (*policy.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attachments[id]
	if !ok {
		return nil, policy.ErrAttachmentNotFound
	}
	return copyAttachment(a), nil
}

// Delete removes an attachment by ID.
func (s *AttachmentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attachments[id]; !ok {
		return policy.ErrAttachmentNotFound
	}
	delete(s.attachments, id)
	return nil
}

// List returns all attachments.
func (s *AttachmentStore) List(ctx context.Context) ([]policy.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]policy.Attachment, 0, len(s.attachments))
	for _, a := range s.attachments {
		result = append(result, *copyAttachment(a))
	}
	return result, nil
}

// ListByPolicy returns all attachments referencing the given policy name.
func (s *AttachmentStore) ListByPolicy(ctx context.Context, policyName string) ([]policy.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []policy.Attachment
	for _, a := range s.attachments {
		if a.PolicyName == policyName {
			result = append(result, *copyAttachment(a))
		}
	}
	return result, nil
}

// copyAttachment creates a deep copy to prevent external mutation.
func copyAttachment(a *policy.Attachment) *policy.Attachment {
	cp := *a
	cp.Teams = append([]string(nil), a.Teams...)
	cp.Keys = append([]string(nil), a.Keys...)
	cp.Models = append([]string(nil), a.Models...)
	return &cp
}

// Compile-time interface verification.
var _ policy.AttachmentStore = (*AttachmentStore)(nil)
