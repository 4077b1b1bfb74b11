// Package policy contains domain types for guardrail policy resolution.
package policy

import "time"

// ScopeGlobal is the attachment scope that applies to every request
// when no narrowing sets are present.
const ScopeGlobal = "*"

// Policy is a named, inheritable bundle of guardrail adjustments.
// Policies form a forest via Inherit; the resolver walks the chain
// root-to-leaf and merges adds/removes in that order.
type Policy struct {
	// ID is the system-generated unique identifier.
	ID string
	// Name is the unique, human-chosen key. Attachments reference
	// policies by name.
	Name string
	// Inherit optionally names a parent policy. The induced graph
	// must be acyclic; violations are rejected at write time.
	Inherit string
	// Description provides additional context about the policy.
	Description string
	// GuardrailsAdd is the ordered list of guardrail names this policy
	// enables. Duplicates within one policy are idempotent.
	GuardrailsAdd []string
	// GuardrailsRemove names guardrails this policy disables, applied
	// after inherited adds.
	GuardrailsRemove []string
	// Condition is an opaque predicate expression evaluated against
	// request context. Reserved for future use; the resolver carries it
	// through untouched, but its syntax is validated on write.
	Condition string
	// CreatedAt is when the policy was created (UTC).
	CreatedAt time.Time
	// UpdatedAt is when the policy was last modified (UTC).
	UpdatedAt time.Time
	// CreatedBy is the identity that created the policy.
	CreatedBy string
	// UpdatedBy is the identity that last modified the policy.
	UpdatedBy string
}

// Attachment binds a policy to a scope. An attachment with
// Scope == ScopeGlobal and empty Teams/Keys/Models applies to every
// request; non-empty sets narrow it to those identifiers.
type Attachment struct {
	// ID is the unique identifier for this attachment.
	ID string
	// PolicyName references an existing Policy by name.
	PolicyName string
	// Scope is ScopeGlobal or an explicit scope marker.
	Scope string
	// Teams narrows the attachment to these team IDs when non-empty.
	Teams []string
	// Keys narrows the attachment to these API key IDs when non-empty.
	Keys []string
	// Models narrows the attachment to these model names when non-empty.
	Models []string
	// CreatedAt is when the attachment was created (UTC).
	CreatedAt time.Time
	// UpdatedAt is when the attachment was last modified (UTC).
	UpdatedAt time.Time
}

// Update is a partial policy update. Nil fields are left unchanged.
type Update struct {
	Inherit          *string
	Description      *string
	GuardrailsAdd    *[]string
	GuardrailsRemove *[]string
	Condition        *string
	UpdatedBy        string
}

// Apply copies the non-nil fields of the update onto p.
func (u Update) Apply(p *Policy) {
	if u.Inherit != nil {
		p.Inherit = *u.Inherit
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.GuardrailsAdd != nil {
		p.GuardrailsAdd = append([]string(nil), (*u.GuardrailsAdd)...)
	}
	if u.GuardrailsRemove != nil {
		p.GuardrailsRemove = append([]string(nil), (*u.GuardrailsRemove)...)
	}
	if u.Condition != nil {
		p.Condition = *u.Condition
	}
	if u.UpdatedBy != "" {
		p.UpdatedBy = u.UpdatedBy
	}
}

// Matches reports whether the attachment applies to the given request
// context: either it is global with no narrowing sets, or any of its
// non-empty sets contains the corresponding context value.
func (a *Attachment) Matches(rc RequestContext) bool {
	return a.SpecificityFor(rc) != SpecificityNone
}

// Specificity ranks how narrowly an attachment matches a context.
// A key match outranks a model match, which outranks a team match,
// which outranks the global scope.
type Specificity int

const (
	SpecificityNone Specificity = iota
	SpecificityGlobal
	SpecificityTeam
	SpecificityModel
	SpecificityKey
)

// SpecificityFor returns the highest specificity with which the
// attachment matches the context, or SpecificityNone if it does not match.
func (a *Attachment) SpecificityFor(rc RequestContext) Specificity {
	switch {
	case contains(a.Keys, rc.KeyID):
		return SpecificityKey
	case contains(a.Models, rc.Model):
		return SpecificityModel
	case contains(a.Teams, rc.TeamID):
		return SpecificityTeam
	case a.Scope == ScopeGlobal && len(a.Teams) == 0 && len(a.Keys) == 0 && len(a.Models) == 0:
		return SpecificityGlobal
	default:
		return SpecificityNone
	}
}

func contains(set []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
