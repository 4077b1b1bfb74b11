package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/railguard-io/railguard/internal/adapter/outbound/cel"
	"github.com/railguard-io/railguard/internal/adapter/outbound/memory"
	"github.com/railguard-io/railguard/internal/domain/policy"
)

type adminFixture struct {
	policies    *memory.PolicyStore
	attachments *memory.AttachmentStore
	resolver    *ResolverService
	policyAdmin *PolicyAdminService
	attAdmin    *AttachmentAdminService
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	policies := memory.NewPolicyStore()
	attachments := memory.NewAttachmentStore()
	logger := testLogger()
	resolver := NewResolverService(policies, attachments, logger)
	conditions, err := cel.NewConditionValidator()
	if err != nil {
		t.Fatalf("NewConditionValidator() error = %v", err)
	}
	return &adminFixture{
		policies:    policies,
		attachments: attachments,
		resolver:    resolver,
		policyAdmin: NewPolicyAdminService(policies, attachments, resolver, conditions, logger),
		attAdmin:    NewAttachmentAdminService(attachments, policies, resolver, logger),
	}
}

func (f *adminFixture) mustCreatePolicy(t *testing.T, p policy.Policy) *policy.Policy {
	t.Helper()
	created, err := f.policyAdmin.Create(context.Background(), &p)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", p.Name, err)
	}
	return created
}

func TestPolicyCreate(t *testing.T) {
	f := newAdminFixture(t)

	created := f.mustCreatePolicy(t, policy.Policy{
		Name:          "pii-baseline",
		GuardrailsAdd: []string{"pii"},
		CreatedBy:     "admin",
	})
	if created.ID == "" {
		t.Error("ID not generated")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
	if created.CreatedBy != "admin" {
		t.Errorf("CreatedBy = %q", created.CreatedBy)
	}
}

func TestPolicyCreateValidation(t *testing.T) {
	f := newAdminFixture(t)
	f.mustCreatePolicy(t, policy.Policy{Name: "existing"})

	tests := []struct {
		name   string
		policy policy.Policy
		check  func(t *testing.T, err error)
	}{
		{
			name:   "empty name",
			policy: policy.Policy{},
			check: func(t *testing.T, err error) {
				var verr *policy.ValidationError
				if !errors.As(err, &verr) || verr.Field != "name" {
					t.Errorf("error = %v, want name validation error", err)
				}
			},
		},
		{
			name:   "duplicate name",
			policy: policy.Policy{Name: "existing"},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, policy.ErrDuplicateName) {
					t.Errorf("error = %v, want ErrDuplicateName", err)
				}
			},
		},
		{
			name:   "unknown parent",
			policy: policy.Policy{Name: "child", Inherit: "missing"},
			check: func(t *testing.T, err error) {
				var verr *policy.ValidationError
				if !errors.As(err, &verr) || verr.Field != "inherit" {
					t.Errorf("error = %v, want inherit validation error", err)
				}
			},
		},
		{
			name:   "self inheritance",
			policy: policy.Policy{Name: "selfish", Inherit: "selfish"},
			check: func(t *testing.T, err error) {
				var cycle *policy.CycleError
				if !errors.As(err, &cycle) {
					t.Errorf("error = %v, want *policy.CycleError", err)
				}
			},
		},
		{
			name:   "malformed condition",
			policy: policy.Policy{Name: "conditional", Condition: "team =="},
			check: func(t *testing.T, err error) {
				var verr *policy.ValidationError
				if !errors.As(err, &verr) || verr.Field != "condition" {
					t.Errorf("error = %v, want condition validation error", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.policyAdmin.Create(context.Background(), &tt.policy)
			if err == nil {
				t.Fatal("Create() succeeded, want error")
			}
			tt.check(t, err)
		})
	}
}

func TestPolicyUpdateCycleRejected(t *testing.T) {
	f := newAdminFixture(t)
	parent := f.mustCreatePolicy(t, policy.Policy{Name: "parent"})
	f.mustCreatePolicy(t, policy.Policy{Name: "child", Inherit: "parent"})

	// parent -> child -> parent would close the loop.
	inherit := "child"
	_, err := f.policyAdmin.Update(context.Background(), parent.ID, policy.Update{Inherit: &inherit})
	var cycle *policy.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("Update() error = %v, want *policy.CycleError", err)
	}
}

func TestPolicyUpdate(t *testing.T) {
	f := newAdminFixture(t)
	created := f.mustCreatePolicy(t, policy.Policy{
		Name:          "baseline",
		GuardrailsAdd: []string{"pii"},
		CreatedBy:     "admin",
	})

	desc := "updated description"
	adds := []string{"pii", "blocklist"}
	updated, err := f.policyAdmin.Update(context.Background(), created.ID, policy.Update{
		Description:   &desc,
		GuardrailsAdd: &adds,
		UpdatedBy:     "editor",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Description != desc {
		t.Errorf("Description = %q", updated.Description)
	}
	if !reflect.DeepEqual(updated.GuardrailsAdd, adds) {
		t.Errorf("GuardrailsAdd = %v", updated.GuardrailsAdd)
	}
	if updated.ID != created.ID || updated.Name != created.Name {
		t.Errorf("identity changed: %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed: %v", updated.CreatedAt)
	}
	if updated.CreatedBy != "admin" || updated.UpdatedBy != "editor" {
		t.Errorf("audit fields: CreatedBy=%q UpdatedBy=%q", updated.CreatedBy, updated.UpdatedBy)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) && !updated.UpdatedAt.Equal(created.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced: %v", updated.UpdatedAt)
	}
}

func TestPolicyUpdateNotFound(t *testing.T) {
	f := newAdminFixture(t)
	_, err := f.policyAdmin.Update(context.Background(), "missing-id", policy.Update{})
	if !errors.Is(err, policy.ErrPolicyNotFound) {
		t.Errorf("Update() error = %v, want ErrPolicyNotFound", err)
	}
}

func TestPolicyDeleteProtection(t *testing.T) {
	f := newAdminFixture(t)
	target := f.mustCreatePolicy(t, policy.Policy{Name: "protected"})
	f.mustCreatePolicy(t, policy.Policy{Name: "heir", Inherit: "protected"})

	attachment, err := f.attAdmin.Create(context.Background(), &policy.Attachment{PolicyName: "protected"})
	if err != nil {
		t.Fatalf("attachment Create() error = %v", err)
	}

	// Attachment reference blocks deletion first.
	err = f.policyAdmin.Delete(context.Background(), target.ID)
	if !errors.Is(err, policy.ErrReferencedByAttachment) {
		t.Fatalf("Delete() error = %v, want ErrReferencedByAttachment", err)
	}

	if err := f.attAdmin.Delete(context.Background(), attachment.ID); err != nil {
		t.Fatalf("attachment Delete() error = %v", err)
	}

	// Still blocked while a policy inherits from it.
	err = f.policyAdmin.Delete(context.Background(), target.ID)
	var verr *policy.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Delete() error = %v, want *policy.ValidationError", err)
	}

	heirs, err := f.policyAdmin.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, p := range heirs {
		if p.Name == "heir" {
			if err := f.policyAdmin.Delete(context.Background(), p.ID); err != nil {
				t.Fatalf("Delete(heir) error = %v", err)
			}
		}
	}

	if err := f.policyAdmin.Delete(context.Background(), target.ID); err != nil {
		t.Fatalf("Delete() after clearing references error = %v", err)
	}
	if _, err := f.policyAdmin.Get(context.Background(), target.ID); !errors.Is(err, policy.ErrPolicyNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
}

func TestPolicyMutationsInvalidateResolverCache(t *testing.T) {
	f := newAdminFixture(t)
	created := f.mustCreatePolicy(t, policy.Policy{Name: "cached", GuardrailsAdd: []string{"pii"}})
	if _, err := f.attAdmin.Create(context.Background(), &policy.Attachment{PolicyName: "cached"}); err != nil {
		t.Fatalf("attachment Create() error = %v", err)
	}

	rc := policy.RequestContext{TeamID: "team-a"}
	res, err := f.resolver.Resolve(context.Background(), rc)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !reflect.DeepEqual(res.Guardrails, []string{"pii"}) {
		t.Fatalf("Guardrails = %v", res.Guardrails)
	}

	adds := []string{"pii", "blocklist"}
	if _, err := f.policyAdmin.Update(context.Background(), created.ID, policy.Update{GuardrailsAdd: &adds}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	res, err = f.resolver.Resolve(context.Background(), rc)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !reflect.DeepEqual(res.Guardrails, []string{"pii", "blocklist"}) {
		t.Errorf("Guardrails after update = %v, cache not invalidated", res.Guardrails)
	}
}

func TestAttachmentCreateValidation(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.attAdmin.Create(context.Background(), &policy.Attachment{})
	var verr *policy.ValidationError
	if !errors.As(err, &verr) || verr.Field != "policy_name" {
		t.Errorf("Create() error = %v, want policy_name validation error", err)
	}

	_, err = f.attAdmin.Create(context.Background(), &policy.Attachment{PolicyName: "missing"})
	if !errors.Is(err, policy.ErrPolicyNotFound) {
		t.Errorf("Create() error = %v, want ErrPolicyNotFound", err)
	}
}

func TestAttachmentCreateDefaultsScope(t *testing.T) {
	f := newAdminFixture(t)
	f.mustCreatePolicy(t, policy.Policy{Name: "base"})

	created, err := f.attAdmin.Create(context.Background(), &policy.Attachment{
		PolicyName: "base",
		Teams:      []string{"team-a"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Scope != policy.ScopeGlobal {
		t.Errorf("Scope = %q, want %q", created.Scope, policy.ScopeGlobal)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Errorf("identity not generated: %+v", created)
	}
}

func TestAttachmentDelete(t *testing.T) {
	f := newAdminFixture(t)
	f.mustCreatePolicy(t, policy.Policy{Name: "base"})
	created, err := f.attAdmin.Create(context.Background(), &policy.Attachment{PolicyName: "base"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := f.attAdmin.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := f.attAdmin.Delete(context.Background(), created.ID); !errors.Is(err, policy.ErrAttachmentNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}
