package guardrail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs pipelines against live request or response payloads.
// One ExecuteSteps call serves exactly one in-flight gateway request;
// concurrency exists only across calls, never within one. Steps execute
// strictly sequentially because later steps may see texts transformed
// by earlier steps and a block must stop all further side effects.
type Executor struct {
	registry    Registry
	logger      *slog.Logger
	tracer      trace.Tracer
	failOpen    bool
	stepTimeout time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithTracer sets the OpenTelemetry tracer used for per-step spans.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = tracer }
}

// WithFailOpen makes technical guardrail failures continue to the next
// step instead of blocking. The default is fail-closed.
func WithFailOpen(failOpen bool) ExecutorOption {
	return func(e *Executor) { e.failOpen = failOpen }
}

// WithStepTimeout bounds each guardrail invocation. Zero disables the
// per-step timeout.
func WithStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.stepTimeout = d }
}

// NewExecutor creates an Executor backed by the given registry.
func NewExecutor(registry Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteSteps runs the pipeline against the payload and returns the
// full Result. Individual guardrail errors never propagate as crashes;
// they are recorded with an error outcome and drive the fail-closed
// transition. When ctx is cancelled the in-flight invocation is
// abandoned and ctx's error is returned with no partial Result, so the
// caller can distinguish cancellation from a block verdict.
func (e *Executor) ExecuteSteps(ctx context.Context, p *Pipeline, payload map[string]any) (*Result, error) {
	start := time.Now()
	inputType := InputTypeFor(p.Mode)
	data := payload
	texts := ExtractTexts(data, inputType)
	model := ModelFrom(data)

	result := &Result{Verdict: VerdictAllow, Steps: []StepResult{}}

	i := 0
	for i < len(p.Steps) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		step := p.Steps[i]
		stepStart := time.Now()
		outcome, detail, out := e.invoke(ctx, step, Inputs{Texts: texts, Model: model}, data, inputType)
		stepDuration := time.Since(stepStart)

		// Parent cancellation during the invocation aborts the pipeline
		// without a partial result.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// A mutated payload (e.g. redaction) is carried into every
		// subsequent step and the final result, whether or not the
		// guardrail also flagged.
		if outcome != OutcomeError && out.Texts != nil {
			texts = out.Texts
			data = InjectTexts(data, inputType, texts)
		}

		action := e.actionFor(step, outcome)
		result.Steps = append(result.Steps, StepResult{
			StepIndex:     i,
			GuardrailName: step.GuardrailName,
			Outcome:       outcome,
			ActionTaken:   action,
			Duration:      stepDuration,
			Detail:        detail,
		})

		e.logger.Debug("guardrail step executed",
			"step", i,
			"guardrail", step.GuardrailName,
			"mode", p.Mode,
			"outcome", outcome,
			"action", action,
		)

		if action == ActionBlock {
			result.Verdict = VerdictBlock
			break
		}

		next, err := targetIndex(p, i, action)
		if err != nil {
			// Unreachable for pipelines from the builder; blocked
			// defensively because a broken transition must not loop.
			e.logger.Error("pipeline transition failed", "step", i, "action", action, "error", err)
			result.Verdict = VerdictError
			break
		}
		i = next
	}

	result.Payload = data
	result.Duration = time.Since(start)
	return result, nil
}

// invoke looks up and calls one guardrail capability, classifying the
// outcome as pass, fail, or error.
func (e *Executor) invoke(ctx context.Context, step Step, inputs Inputs, payload map[string]any, inputType InputType) (Outcome, string, Output) {
	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "guardrail.apply",
			trace.WithAttributes(
				attribute.String("guardrail.name", step.GuardrailName),
				attribute.String("guardrail.input_type", string(inputType)),
			),
		)
		defer span.End()
	}

	capability, err := e.registry.Lookup(step.GuardrailName)
	if err != nil {
		e.logger.Warn("guardrail lookup failed", "guardrail", step.GuardrailName, "error", err)
		return OutcomeError, err.Error(), Output{}
	}

	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	out, err := capability.Apply(ctx, inputs, payload, inputType)
	if err != nil {
		var violation *ViolationError
		if errors.As(err, &violation) {
			return OutcomeFail, violation.Reason, out
		}
		e.logger.Warn("guardrail invocation failed",
			"guardrail", step.GuardrailName,
			"error", err,
		)
		return OutcomeError, err.Error(), Output{}
	}
	if out.Flagged {
		return OutcomeFail, out.Reason, out
	}
	return OutcomePass, out.Reason, out
}

// actionFor picks the transition for an outcome. Errors are fail-closed
// by default: the step blocks regardless of its OnFail transition.
// Fail-open deployments continue to the next step instead.
func (e *Executor) actionFor(step Step, outcome Outcome) string {
	switch outcome {
	case OutcomePass:
		return step.OnPass
	case OutcomeFail:
		return step.OnFail
	default:
		if e.failOpen {
			return ActionNext
		}
		return ActionBlock
	}
}
