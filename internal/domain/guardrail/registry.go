package guardrail

import "context"

// Inputs carries the texts extracted from the request or response
// payload, plus the model the request targets.
type Inputs struct {
	Texts []string
	Model string
}

// Output is a guardrail's verdict on the inputs. When Texts is non-nil
// it replaces the extracted texts (e.g. after redaction) for all
// subsequent steps.
type Output struct {
	Texts   []string
	Flagged bool
	Reason  string
	Detail  map[string]any
}

// Capability is a callable guardrail check. A violation is signalled
// either by Output.Flagged or by returning a *ViolationError; any other
// error is a technical invocation failure.
type Capability interface {
	Apply(ctx context.Context, inputs Inputs, payload map[string]any, inputType InputType) (Output, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, inputs Inputs, payload map[string]any, inputType InputType) (Output, error)

// Apply calls f.
func (f CapabilityFunc) Apply(ctx context.Context, inputs Inputs, payload map[string]any, inputType InputType) (Output, error) {
	return f(ctx, inputs, payload, inputType)
}

// Registry maps guardrail names to capabilities. It is constructed at
// process startup and passed by reference into the builder and executor;
// there is no ambient global registry.
type Registry interface {
	// Lookup returns the capability for the given name, or
	// ErrGuardrailNotFound.
	Lookup(name string) (Capability, error)
	// Names returns all registered guardrail names.
	Names() []string
}
