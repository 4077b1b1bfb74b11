package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration using struct tags plus cross-field
// rules, returning actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateRemoteGuardrailNames(); err != nil {
		return err
	}
	if c.Seed.Watch && c.Seed.File == "" {
		return errors.New("seed: watch requires a seed file")
	}
	return nil
}

// validateRemoteGuardrailNames rejects duplicate and reserved names.
// Builtin guardrails claim "pii" and "blocklist".
func (c *Config) validateRemoteGuardrailNames() error {
	seen := make(map[string]bool, len(c.Guardrails.Remote))
	for _, r := range c.Guardrails.Remote {
		if r.Name == "pii" && c.Guardrails.PII.Enabled {
			return fmt.Errorf("guardrails: remote name %q collides with the builtin PII detector", r.Name)
		}
		if r.Name == "blocklist" && c.Guardrails.Blocklist.Enabled {
			return fmt.Errorf("guardrails: remote name %q collides with the builtin blocklist", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("guardrails: duplicate remote name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// formatValidationErrors converts validator errors into readable messages.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Namespace()))
		case "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required for this backend", fe.Namespace()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Namespace(), fe.Param()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", fe.Namespace()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Namespace(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
