package guardrail

import (
	"errors"
	"fmt"
)

// ErrGuardrailNotFound is returned by a Registry when no capability is
// registered under the requested name.
var ErrGuardrailNotFound = errors.New("guardrail not found")

// ViolationError signals that a guardrail flagged a policy violation.
// The executor classifies it as a fail outcome, not a technical error.
type ViolationError struct {
	GuardrailName string
	Reason        string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("guardrail %q flagged a violation: %s", e.GuardrailName, e.Reason)
}

// NewViolationError creates a ViolationError for the given guardrail.
func NewViolationError(name, reason string) *ViolationError {
	return &ViolationError{GuardrailName: name, Reason: reason}
}

// ValidationError reports an invalid explicit pipeline spec: an unknown
// guardrail, a malformed transition, or a non-forward jump target.
type ValidationError struct {
	StepIndex int
	Message   string
}

func (e *ValidationError) Error() string {
	if e.StepIndex < 0 {
		return fmt.Sprintf("invalid pipeline: %s", e.Message)
	}
	return fmt.Sprintf("invalid pipeline step %d: %s", e.StepIndex, e.Message)
}

func newValidationError(step int, format string, args ...any) *ValidationError {
	return &ValidationError{StepIndex: step, Message: fmt.Sprintf(format, args...)}
}
