package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/railguard-io/railguard/internal/adapter/outbound/memory"
	"github.com/railguard-io/railguard/internal/domain/guardrail"
	"github.com/railguard-io/railguard/internal/domain/policy"
)

type hookFixture struct {
	*resolverFixture
	registry *memory.GuardrailRegistry
	metrics  *Metrics
	promReg  *prometheus.Registry
	hooks    *HookService
}

func newHookFixture(t *testing.T) *hookFixture {
	t.Helper()
	rf := newResolverFixture(t)
	registry := memory.NewGuardrailRegistry()
	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg)
	logger := testLogger()
	hooks := NewHookService(
		rf.resolver,
		guardrail.NewBuilder(registry),
		guardrail.NewExecutor(registry, guardrail.WithLogger(logger)),
		metrics,
		logger,
	)
	return &hookFixture{
		resolverFixture: rf,
		registry:        registry,
		metrics:         metrics,
		promReg:         promReg,
		hooks:           hooks,
	}
}

func passGuardrail() guardrail.Capability {
	return guardrail.CapabilityFunc(func(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
		return guardrail.Output{}, nil
	})
}

func hookPayload(text string) map[string]any {
	return map[string]any{
		"model":    "gpt-4",
		"messages": []any{map[string]any{"role": "user", "content": text}},
	}
}

func TestPreCallRunsResolvedPipeline(t *testing.T) {
	f := newHookFixture(t)
	f.addPolicy(t, "base", "", []string{"checker"}, nil)
	f.attach(t, policy.Attachment{ID: "att-1", PolicyName: "base"})

	var sawInputType guardrail.InputType
	f.registry.Register("checker", guardrail.CapabilityFunc(func(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
		sawInputType = inputType
		return guardrail.Output{}, nil
	}))

	result, err := f.hooks.PreCall(context.Background(), policy.RequestContext{TeamID: "team-a"}, hookPayload("hello"))
	if err != nil {
		t.Fatalf("PreCall() error = %v", err)
	}
	if result.Verdict != guardrail.VerdictAllow {
		t.Errorf("Verdict = %q", result.Verdict)
	}
	if len(result.Steps) != 1 || result.Steps[0].GuardrailName != "checker" {
		t.Errorf("Steps = %+v", result.Steps)
	}
	if sawInputType != guardrail.InputTypeRequest {
		t.Errorf("input type = %q, want request", sawInputType)
	}
}

func TestPostCallUsesResponseInputType(t *testing.T) {
	f := newHookFixture(t)
	f.addPolicy(t, "base", "", []string{"checker"}, nil)
	f.attach(t, policy.Attachment{ID: "att-1", PolicyName: "base"})

	var sawInputType guardrail.InputType
	f.registry.Register("checker", guardrail.CapabilityFunc(func(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
		sawInputType = inputType
		return guardrail.Output{}, nil
	}))

	payload := map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": "hi"}}},
	}
	result, err := f.hooks.PostCall(context.Background(), policy.RequestContext{TeamID: "team-a"}, payload)
	if err != nil {
		t.Fatalf("PostCall() error = %v", err)
	}
	if result.Verdict != guardrail.VerdictAllow {
		t.Errorf("Verdict = %q", result.Verdict)
	}
	if sawInputType != guardrail.InputTypeResponse {
		t.Errorf("input type = %q, want response", sawInputType)
	}
}

func TestPreCallEmptyResolutionAllows(t *testing.T) {
	f := newHookFixture(t)

	result, err := f.hooks.PreCall(context.Background(), policy.RequestContext{TeamID: "team-a"}, hookPayload("hello"))
	if err != nil {
		t.Fatalf("PreCall() error = %v", err)
	}
	if result.Verdict != guardrail.VerdictAllow {
		t.Errorf("Verdict = %q", result.Verdict)
	}
	if result.Steps == nil || len(result.Steps) != 0 {
		t.Errorf("Steps = %#v, want empty non-nil slice", result.Steps)
	}
}

func TestPreCallBlocksOnViolation(t *testing.T) {
	f := newHookFixture(t)
	f.addPolicy(t, "base", "", []string{"strict"}, nil)
	f.attach(t, policy.Attachment{ID: "att-1", PolicyName: "base"})
	f.registry.Register("strict", guardrail.CapabilityFunc(func(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
		return guardrail.Output{Flagged: true, Reason: "nope"}, nil
	}))

	result, err := f.hooks.PreCall(context.Background(), policy.RequestContext{TeamID: "team-a"}, hookPayload("hello"))
	if err != nil {
		t.Fatalf("PreCall() error = %v", err)
	}
	if !result.Blocked() {
		t.Errorf("Verdict = %q, want block", result.Verdict)
	}
}

func TestPreCallCycleFailsClosed(t *testing.T) {
	f := newHookFixture(t)
	// A cycle written directly to the store, past admin validation.
	f.addPolicy(t, "a", "b", nil, nil)
	f.addPolicy(t, "b", "a", nil, nil)
	f.attach(t, policy.Attachment{ID: "att-1", PolicyName: "a"})

	payload := hookPayload("hello")
	result, err := f.hooks.PreCall(context.Background(), policy.RequestContext{TeamID: "team-a"}, payload)
	if err != nil {
		t.Fatalf("PreCall() error = %v, want nil with a block verdict", err)
	}
	if result.Verdict != guardrail.VerdictBlock {
		t.Errorf("Verdict = %q, want block", result.Verdict)
	}
	// Synthetic results carry an empty slice so the hook endpoint
	// serializes "steps": [] on this path too.
	if result.Steps == nil {
		t.Error("Steps = nil, want empty slice")
	}
}

func TestPreCallCancellationPropagates(t *testing.T) {
	f := newHookFixture(t)
	f.addPolicy(t, "base", "", []string{"slow"}, nil)
	f.attach(t, policy.Attachment{ID: "att-1", PolicyName: "base"})

	ctx, cancel := context.WithCancel(context.Background())
	f.registry.Register("slow", guardrail.CapabilityFunc(func(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
		cancel()
		<-ctx.Done()
		return guardrail.Output{}, ctx.Err()
	}))

	result, err := f.hooks.PreCall(ctx, policy.RequestContext{TeamID: "team-a"}, hookPayload("hello"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("PreCall() error = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
}

func TestPreCallRecordsMetrics(t *testing.T) {
	f := newHookFixture(t)
	f.addPolicy(t, "base", "", []string{"checker"}, nil)
	f.attach(t, policy.Attachment{ID: "att-1", PolicyName: "base"})
	f.registry.Register("checker", passGuardrail())

	if _, err := f.hooks.PreCall(context.Background(), policy.RequestContext{TeamID: "team-a"}, hookPayload("hello")); err != nil {
		t.Fatalf("PreCall() error = %v", err)
	}

	if got := counterValue(t, f.promReg, "railguard_resolutions_total", map[string]string{"result": "matched"}); got != 1 {
		t.Errorf("resolutions_total{result=matched} = %v, want 1", got)
	}
	if got := counterValue(t, f.promReg, "railguard_pipeline_verdicts_total", map[string]string{"mode": "pre_call", "verdict": "allow"}); got != 1 {
		t.Errorf("pipeline_verdicts_total = %v, want 1", got)
	}
	if got := counterValue(t, f.promReg, "railguard_guardrail_step_outcomes_total", map[string]string{"guardrail": "checker", "outcome": "pass"}); got != 1 {
		t.Errorf("guardrail_step_outcomes_total = %v, want 1", got)
	}
}

// counterValue gathers the registry and returns the value of the named
// counter with exactly the given labels, or 0 when absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}
