// Package seed loads declarative policy and attachment definitions from
// a YAML file into the configured stores, and can watch the file for
// changes to hot-reload them.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/railguard-io/railguard/internal/domain/policy"
)

// File is the top-level structure of a seed file.
type File struct {
	Policies    []PolicyEntry     `yaml:"policies"`
	Attachments []AttachmentEntry `yaml:"attachments"`
}

// PolicyEntry is a single policy definition in a seed file.
type PolicyEntry struct {
	Name             string   `yaml:"name"`
	Inherit          string   `yaml:"inherit"`
	Description      string   `yaml:"description"`
	GuardrailsAdd    []string `yaml:"guardrails_add"`
	GuardrailsRemove []string `yaml:"guardrails_remove"`
	Condition        string   `yaml:"condition"`
}

// AttachmentEntry is a single attachment definition in a seed file.
type AttachmentEntry struct {
	PolicyName string   `yaml:"policy_name"`
	Scope      string   `yaml:"scope"`
	Teams      []string `yaml:"teams"`
	Keys       []string `yaml:"keys"`
	Models     []string `yaml:"models"`
}

// Invalidator is notified after a successful load so cached
// resolutions pick up the new definitions.
type Invalidator interface {
	Invalidate()
}

// Loader applies seed files to the policy and attachment stores.
type Loader struct {
	policies    policy.Store
	attachments policy.AttachmentStore
	resolver    Invalidator
	logger      *slog.Logger
}

// NewLoader creates a seed loader.
func NewLoader(policies policy.Store, attachments policy.AttachmentStore, resolver Invalidator, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		policies:    policies,
		attachments: attachments,
		resolver:    resolver,
		logger:      logger,
	}
}

// Load reads the seed file at path and upserts its policies and
// attachments. Existing policies with the same name are updated in
// place; attachments from previous seed runs for the same policy are
// replaced rather than duplicated.
func (l *Loader) Load(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	now := time.Now().UTC()

	for _, entry := range file.Policies {
		if entry.Name == "" {
			return fmt.Errorf("seed policy with empty name")
		}
		if err := l.upsertPolicy(ctx, entry, now); err != nil {
			return fmt.Errorf("failed to seed policy %q: %w", entry.Name, err)
		}
	}

	// Drop earlier seeded attachments for the referenced policies so
	// repeated loads of the same file converge instead of accumulating.
	cleared := make(map[string]bool)
	for _, entry := range file.Attachments {
		if entry.PolicyName == "" {
			return fmt.Errorf("seed attachment with empty policy_name")
		}
		if !cleared[entry.PolicyName] {
			if err := l.clearAttachments(ctx, entry.PolicyName); err != nil {
				return fmt.Errorf("failed to clear attachments for %q: %w", entry.PolicyName, err)
			}
			cleared[entry.PolicyName] = true
		}
		if err := l.createAttachment(ctx, entry, now); err != nil {
			return fmt.Errorf("failed to seed attachment for %q: %w", entry.PolicyName, err)
		}
	}

	if l.resolver != nil {
		l.resolver.Invalidate()
	}

	l.logger.Info("seed file loaded",
		slog.String("path", path),
		slog.Int("policies", len(file.Policies)),
		slog.Int("attachments", len(file.Attachments)),
	)
	return nil
}

func (l *Loader) upsertPolicy(ctx context.Context, entry PolicyEntry, now time.Time) error {
	existing, err := l.policies.GetByName(ctx, entry.Name)
	switch {
	case err == nil:
		existing.Inherit = entry.Inherit
		existing.Description = entry.Description
		existing.GuardrailsAdd = entry.GuardrailsAdd
		existing.GuardrailsRemove = entry.GuardrailsRemove
		existing.Condition = entry.Condition
		existing.UpdatedAt = now
		existing.UpdatedBy = "seed"
		return l.policies.Update(ctx, existing)
	case errors.Is(err, policy.ErrPolicyNotFound):
		return l.policies.Create(ctx, &policy.Policy{
			ID:               uuid.NewString(),
			Name:             entry.Name,
			Inherit:          entry.Inherit,
			Description:      entry.Description,
			GuardrailsAdd:    entry.GuardrailsAdd,
			GuardrailsRemove: entry.GuardrailsRemove,
			Condition:        entry.Condition,
			CreatedAt:        now,
			UpdatedAt:        now,
			CreatedBy:        "seed",
			UpdatedBy:        "seed",
		})
	default:
		return err
	}
}

func (l *Loader) clearAttachments(ctx context.Context, policyName string) error {
	existing, err := l.attachments.ListByPolicy(ctx, policyName)
	if err != nil {
		return err
	}
	for _, a := range existing {
		if err := l.attachments.Delete(ctx, a.ID); err != nil && !errors.Is(err, policy.ErrAttachmentNotFound) {
			return err
		}
	}
	return nil
}

func (l *Loader) createAttachment(ctx context.Context, entry AttachmentEntry, now time.Time) error {
	// A dangling attachment would make every matching request fail
	// closed at resolve time, so reject unknown policy names up front.
	if _, err := l.policies.GetByName(ctx, entry.PolicyName); err != nil {
		return fmt.Errorf("attachment references policy %q: %w", entry.PolicyName, err)
	}
	scope := entry.Scope
	if scope == "" {
		scope = policy.ScopeGlobal
	}
	return l.attachments.Create(ctx, &policy.Attachment{
		ID:         uuid.NewString(),
		PolicyName: entry.PolicyName,
		Scope:      scope,
		Teams:      entry.Teams,
		Keys:       entry.Keys,
		Models:     entry.Models,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}
