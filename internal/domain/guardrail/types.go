// Package guardrail contains the pipeline domain: step control flow,
// the guardrail invocation contract, and the builder/executor pair.
package guardrail

import "time"

// Mode selects which side of the gateway request a pipeline runs on.
type Mode string

const (
	// ModePreCall runs before the request is forwarded to the upstream model.
	ModePreCall Mode = "pre_call"
	// ModePostCall runs on the response coming back from the upstream model.
	ModePostCall Mode = "post_call"
)

// InputType tells a guardrail whether it is inspecting request or
// response data.
type InputType string

const (
	InputTypeRequest  InputType = "request"
	InputTypeResponse InputType = "response"
)

// InputTypeFor maps a pipeline mode to the invocation input type.
func InputTypeFor(mode Mode) InputType {
	if mode == ModePostCall {
		return InputTypeResponse
	}
	return InputTypeRequest
}

// Control-flow actions for a step's OnPass/OnFail. A value that is
// neither ActionNext nor ActionBlock names a later step in the same
// pipeline to jump to.
const (
	ActionNext  = "next"
	ActionBlock = "block"
)

// Step is one guardrail invocation with its pass/fail transitions.
type Step struct {
	// GuardrailName is resolved through the registry at execution time.
	GuardrailName string
	// OnPass is the transition applied when the guardrail passes.
	// ActionBlock is invalid here and rejected at build time.
	OnPass string
	// OnFail is the transition applied when the guardrail flags a violation.
	OnFail string
}

// Pipeline is an ordered sequence of steps built for one mode. Pipelines
// are constructed fresh per request and never shared.
type Pipeline struct {
	Mode  Mode
	Steps []Step
}

// Outcome classifies a single guardrail invocation.
type Outcome string

const (
	// OutcomePass means the guardrail returned normally without flagging.
	OutcomePass Outcome = "pass"
	// OutcomeFail means the guardrail flagged a violation.
	OutcomeFail Outcome = "fail"
	// OutcomeError means the invocation itself failed (network, timeout,
	// malformed response, unknown guardrail).
	OutcomeError Outcome = "error"
)

// Verdict is the terminal result of executing a pipeline. It is a value
// callers must branch on, never an error thrown through them.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictBlock Verdict = "block"
	VerdictError Verdict = "error"
)

// StepResult records one visited step with timing.
type StepResult struct {
	StepIndex     int           `json:"step_index"`
	GuardrailName string        `json:"guardrail_name"`
	Outcome       Outcome       `json:"outcome"`
	ActionTaken   string        `json:"action_taken"`
	Duration      time.Duration `json:"duration"`
	Detail        string        `json:"detail,omitempty"`
}

// Result is the full outcome of one pipeline execution: the verdict,
// every visited step in order, the (possibly transformed) payload, and
// total duration.
type Result struct {
	Verdict  Verdict        `json:"verdict"`
	Steps    []StepResult   `json:"steps"`
	Payload  map[string]any `json:"payload,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Blocked reports whether the pipeline reached an explicit block
// transition. This is an expected, user-visible outcome, distinct from
// a system error.
func (r *Result) Blocked() bool {
	return r.Verdict == VerdictBlock
}
