package guardrails

import (
	"context"
	"fmt"
	"strings"

	"github.com/railguard-io/railguard/internal/domain/guardrail"
)

// KeywordBlocklist flags texts containing any of a configured set of
// case-insensitive keywords.
type KeywordBlocklist struct {
	keywords []string
}

// NewKeywordBlocklist creates a blocklist over the given keywords.
func NewKeywordBlocklist(keywords []string) *KeywordBlocklist {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &KeywordBlocklist{keywords: lowered}
}

// Apply implements guardrail.Capability.
func (b *KeywordBlocklist) Apply(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
	for _, text := range inputs.Texts {
		lower := strings.ToLower(text)
		for _, kw := range b.keywords {
			if strings.Contains(lower, kw) {
				return guardrail.Output{
					Flagged: true,
					Reason:  fmt.Sprintf("blocked keyword %q", kw),
				}, nil
			}
		}
	}
	return guardrail.Output{}, nil
}

// Compile-time interface verification.
var _ guardrail.Capability = (*KeywordBlocklist)(nil)
