package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for policy and attachment operations.
var (
	// ErrPolicyNotFound is returned when a referenced policy does not exist.
	ErrPolicyNotFound = errors.New("policy not found")
	// ErrAttachmentNotFound is returned when a referenced attachment does not exist.
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrDuplicateName is returned on a policy name collision at create time.
	ErrDuplicateName = errors.New("policy name already exists")
	// ErrReferencedByAttachment is returned when deleting a policy that an
	// attachment still points at.
	ErrReferencedByAttachment = errors.New("policy is referenced by an attachment")
)

// CycleError reports an inheritance chain that revisits a policy or
// exceeds the bounded walk depth. It is always rejected, never silently
// truncated.
type CycleError struct {
	// Chain is the walk that triggered the error, in visit order.
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("policy inheritance cycle: %s", strings.Join(e.Chain, " -> "))
}

// ValidationError reports a malformed create/update payload. The admin
// layer surfaces it as a client error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
