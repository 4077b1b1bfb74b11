// Package cel validates policy condition expressions.
//
// The condition field is reserved for future use: the resolver carries
// it through as an opaque value and never evaluates it on the request
// path. Validating syntax at write time keeps invalid expressions from
// poisoning the store before the field goes live.
package cel

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// maxExpressionLength is the maximum allowed length for condition expressions.
const maxExpressionLength = 1024

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// ConditionValidator compiles condition expressions against the request
// context environment.
type ConditionValidator struct {
	env *cel.Env
}

// NewConditionValidator creates a validator whose environment exposes
// the request context fields a condition may reference.
func NewConditionValidator() (*ConditionValidator, error) {
	env, err := cel.NewEnv(
		cel.Variable("team_id", cel.StringType),
		cel.Variable("key_id", cel.StringType),
		cel.Variable("model", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create condition environment: %w", err)
	}
	return &ConditionValidator{env: env}, nil
}

// Validate checks that a condition expression is syntactically valid,
// within safety limits, and evaluates to a boolean. An empty expression
// is valid (no condition).
func (v *ConditionValidator) Validate(expr string) error {
	if expr == "" {
		return nil
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}

	ast, issues := v.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid condition expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return errors.New("condition expression must evaluate to a boolean")
	}
	return nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}
