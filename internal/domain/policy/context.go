package policy

// RequestContext identifies the caller of an in-flight gateway request
// for attachment matching. Any field may be empty; an empty field never
// matches a narrowing set.
type RequestContext struct {
	// TeamID is the caller's team identifier.
	TeamID string
	// KeyID is the caller's API key identifier.
	KeyID string
	// Model is the upstream model the request targets.
	Model string
}

// Resolution is the outcome of resolving a request context: the ordered,
// de-duplicated guardrail names that must apply, plus the inheritance
// chain (root first) that produced them.
type Resolution struct {
	// Guardrails is the effective ordered guardrail set.
	Guardrails []string
	// Chain lists the policy names walked root-to-leaf. Empty when no
	// attachment matched.
	Chain []string
	// AttachmentID is the attachment whose policy was selected, if any.
	AttachmentID string
}
