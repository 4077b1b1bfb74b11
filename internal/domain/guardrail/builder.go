package guardrail

import "fmt"

// StepSpec is one step of an explicit pipeline specification, as
// submitted to the test/dry-run surface.
type StepSpec struct {
	Guardrail string `json:"guardrail"`
	OnPass    string `json:"on_pass,omitempty"`
	OnFail    string `json:"on_fail,omitempty"`
}

// PipelineSpec is an explicit pipeline description. Unlike resolved
// pipelines it is validated in full before execution.
type PipelineSpec struct {
	Mode  Mode       `json:"mode"`
	Steps []StepSpec `json:"steps"`
}

// Builder turns resolved guardrail sets or explicit specs into
// executable pipelines. Explicit specs are validated against the
// registry so unknown names fail at build time, not execution time.
type Builder struct {
	registry Registry
}

// NewBuilder creates a Builder backed by the given registry.
func NewBuilder(registry Registry) *Builder {
	return &Builder{registry: registry}
}

// FromResolved builds a pipeline with one step per resolved guardrail
// name, in resolved order, with the fail-closed defaults: OnPass next,
// OnFail block. Names are not checked against the registry here; an
// unregistered name surfaces as an error outcome at execution time.
func (b *Builder) FromResolved(names []string, mode Mode) *Pipeline {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{
			GuardrailName: name,
			OnPass:        ActionNext,
			OnFail:        ActionBlock,
		}
	}
	return &Pipeline{Mode: mode, Steps: steps}
}

// FromSpec validates an explicit pipeline spec and builds the pipeline.
// Every guardrail must exist in the registry, OnPass may not be block,
// and every named jump target must refer to a step strictly later in
// the pipeline. Forward-only jumps guarantee termination.
func (b *Builder) FromSpec(spec PipelineSpec) (*Pipeline, error) {
	if spec.Mode != ModePreCall && spec.Mode != ModePostCall {
		return nil, newValidationError(-1, "mode must be %q or %q", ModePreCall, ModePostCall)
	}
	if len(spec.Steps) == 0 {
		return nil, newValidationError(-1, "pipeline has no steps")
	}

	// Index steps by guardrail name for jump-target resolution. Names
	// must be unique so targets are unambiguous.
	indexByName := make(map[string]int, len(spec.Steps))
	for i, s := range spec.Steps {
		if s.Guardrail == "" {
			return nil, newValidationError(i, "guardrail name is required")
		}
		if _, dup := indexByName[s.Guardrail]; dup {
			return nil, newValidationError(i, "duplicate guardrail %q", s.Guardrail)
		}
		indexByName[s.Guardrail] = i
	}

	steps := make([]Step, len(spec.Steps))
	for i, s := range spec.Steps {
		if _, err := b.registry.Lookup(s.Guardrail); err != nil {
			return nil, newValidationError(i, "unknown guardrail %q", s.Guardrail)
		}

		onPass := s.OnPass
		if onPass == "" {
			onPass = ActionNext
		}
		onFail := s.OnFail
		if onFail == "" {
			onFail = ActionBlock
		}

		if onPass == ActionBlock {
			return nil, newValidationError(i, "on_pass may not be %q", ActionBlock)
		}
		if err := validateTarget(indexByName, i, onPass); err != nil {
			return nil, err
		}
		if err := validateTarget(indexByName, i, onFail); err != nil {
			return nil, err
		}

		steps[i] = Step{GuardrailName: s.Guardrail, OnPass: onPass, OnFail: onFail}
	}

	return &Pipeline{Mode: spec.Mode, Steps: steps}, nil
}

// validateTarget checks that a transition is next, block, or a forward
// jump to an existing step.
func validateTarget(indexByName map[string]int, from int, action string) error {
	if action == ActionNext || action == ActionBlock {
		return nil
	}
	target, ok := indexByName[action]
	if !ok {
		return newValidationError(from, "jump target %q does not name a step", action)
	}
	if target <= from {
		return newValidationError(from, "jump target %q is not a later step", action)
	}
	return nil
}

// targetIndex resolves a transition to the next step index. next is the
// following step; a named target is its index. Callers handle block
// before resolving.
func targetIndex(p *Pipeline, from int, action string) (int, error) {
	if action == ActionNext {
		return from + 1, nil
	}
	for i := from + 1; i < len(p.Steps); i++ {
		if p.Steps[i].GuardrailName == action {
			return i, nil
		}
	}
	return 0, fmt.Errorf("step %d: no forward step named %q", from, action)
}
