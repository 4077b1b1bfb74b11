package policy

import "context"

// Store persists and retrieves policies. Implementations must enforce
// name uniqueness (ErrDuplicateName) and report missing records with
// ErrPolicyNotFound. Mutations are atomic against the backing store.
type Store interface {
	// Create inserts a new policy. Returns ErrDuplicateName when the
	// name is already taken.
	Create(ctx context.Context, p *Policy) error
	// Get returns a policy by ID.
	Get(ctx context.Context, id string) (*Policy, error)
	// GetByName returns a policy by its unique name.
	GetByName(ctx context.Context, name string) (*Policy, error)
	// Update replaces the stored policy with the given ID.
	Update(ctx context.Context, p *Policy) error
	// Delete removes a policy by ID.
	Delete(ctx context.Context, id string) error
	// List returns all policies.
	List(ctx context.Context) ([]Policy, error)
}

// AttachmentStore persists and retrieves policy attachments.
type AttachmentStore interface {
	// Create inserts a new attachment.
	Create(ctx context.Context, a *Attachment) error
	// Get returns an attachment by ID.
	Get(ctx context.Context, id string) (*Attachment, error)
	// Delete removes an attachment by ID.
	Delete(ctx context.Context, id string) error
	// List returns all attachments.
	List(ctx context.Context) ([]Attachment, error)
	// ListByPolicy returns all attachments referencing the given policy name.
	ListByPolicy(ctx context.Context, policyName string) ([]Attachment, error)
}
