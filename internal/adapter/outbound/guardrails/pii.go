// Package guardrails provides guardrail capabilities: builtin regex
// checks for local deployments and an HTTP client for external
// guardrail services.
package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/railguard-io/railguard/internal/domain/guardrail"
)

// PIIPattern names a predefined PII detection pattern.
type PIIPattern string

const (
	PIIPatternSSN        PIIPattern = "ssn"
	PIIPatternEmail      PIIPattern = "email"
	PIIPatternPhone      PIIPattern = "phone"
	PIIPatternCreditCard PIIPattern = "credit_card"
	PIIPatternIPAddress  PIIPattern = "ip_address"
)

// Predefined PII regex patterns.
var piiPatterns = map[PIIPattern]string{
	PIIPatternSSN:        `\b\d{3}-\d{2}-\d{4}\b`,
	PIIPatternEmail:      `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`,
	PIIPatternPhone:      `(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`,
	PIIPatternCreditCard: `\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`,
	PIIPatternIPAddress:  `\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`,
}

// PIIDetectorConfig configures PII detection behavior.
type PIIDetectorConfig struct {
	// Redact replaces detected PII with a mask and passes; when false
	// the detector flags a violation instead.
	Redact bool
	// EnabledPatterns selects which built-in patterns to detect.
	// Empty enables all of them.
	EnabledPatterns []PIIPattern
	// CustomPatterns adds named regex patterns.
	CustomPatterns map[string]string
}

// PIIDetector detects personally identifiable information in the
// extracted texts, either flagging it or redacting it in place.
type PIIDetector struct {
	redact   bool
	patterns map[string]*regexp.Regexp
}

// NewPIIDetector creates a PII detector. Returns an error if a custom
// pattern is invalid regex.
func NewPIIDetector(cfg PIIDetectorConfig) (*PIIDetector, error) {
	enabled := cfg.EnabledPatterns
	if len(enabled) == 0 {
		for p := range piiPatterns {
			enabled = append(enabled, p)
		}
	}

	patterns := make(map[string]*regexp.Regexp, len(enabled)+len(cfg.CustomPatterns))
	for _, p := range enabled {
		src, ok := piiPatterns[p]
		if !ok {
			return nil, fmt.Errorf("unknown PII pattern %q", p)
		}
		patterns[string(p)] = regexp.MustCompile(src)
	}
	for name, src := range cfg.CustomPatterns {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("custom pattern %q: %w", name, err)
		}
		patterns[name] = re
	}

	return &PIIDetector{redact: cfg.Redact, patterns: patterns}, nil
}

// Apply implements guardrail.Capability.
func (d *PIIDetector) Apply(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
	var matched []string
	redacted := make([]string, len(inputs.Texts))
	changed := false

	for i, text := range inputs.Texts {
		redacted[i] = text
		for name, re := range d.patterns {
			if !re.MatchString(redacted[i]) {
				continue
			}
			matched = append(matched, name)
			if d.redact {
				redacted[i] = re.ReplaceAllString(redacted[i], "[REDACTED]")
				changed = true
			}
		}
	}

	if len(matched) == 0 {
		return guardrail.Output{}, nil
	}
	reason := fmt.Sprintf("detected PII: %s", strings.Join(dedupe(matched), ", "))
	if d.redact {
		out := guardrail.Output{Reason: reason}
		if changed {
			out.Texts = redacted
		}
		return out, nil
	}
	return guardrail.Output{Flagged: true, Reason: reason}, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Compile-time interface verification.
var _ guardrail.Capability = (*PIIDetector)(nil)
