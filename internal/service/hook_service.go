package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/railguard-io/railguard/internal/domain/guardrail"
	"github.com/railguard-io/railguard/internal/domain/policy"
)

// HookService glues resolution, building, and execution together for
// the live request path: the gateway calls PreCall before forwarding a
// request upstream and PostCall on the response coming back.
//
// Resolution failures inside a live request never crash the request
// path. A cycle that slipped into the store is logged and fails closed:
// the request is blocked.
type HookService struct {
	resolver *ResolverService
	builder  *guardrail.Builder
	executor *guardrail.Executor
	metrics  *Metrics
	logger   *slog.Logger
}

// NewHookService creates a HookService.
func NewHookService(
	resolver *ResolverService,
	builder *guardrail.Builder,
	executor *guardrail.Executor,
	metrics *Metrics,
	logger *slog.Logger,
) *HookService {
	return &HookService{
		resolver: resolver,
		builder:  builder,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
	}
}

// PreCall resolves and runs the pre_call pipeline against the request
// payload. The returned result carries the verdict and the (possibly
// transformed) payload to forward upstream. A non-nil error means the
// request was cancelled or timed out, distinct from a block verdict.
func (s *HookService) PreCall(ctx context.Context, rc policy.RequestContext, payload map[string]any) (*guardrail.Result, error) {
	return s.run(ctx, rc, guardrail.ModePreCall, payload)
}

// PostCall resolves and runs the post_call pipeline against the
// response payload.
func (s *HookService) PostCall(ctx context.Context, rc policy.RequestContext, payload map[string]any) (*guardrail.Result, error) {
	return s.run(ctx, rc, guardrail.ModePostCall, payload)
}

func (s *HookService) run(ctx context.Context, rc policy.RequestContext, mode guardrail.Mode, payload map[string]any) (*guardrail.Result, error) {
	resolveStart := time.Now()
	res, err := s.resolver.Resolve(ctx, rc)
	s.observeResolution(res, err, time.Since(resolveStart))
	if err != nil {
		var cycle *policy.CycleError
		if errors.As(err, &cycle) {
			// Fail closed: a broken inheritance chain must not let the
			// request through unchecked.
			s.logger.Error("policy resolution failed, blocking request",
				"mode", mode,
				"team", rc.TeamID,
				"key", rc.KeyID,
				"model", rc.Model,
				"error", err,
			)
			blocked := s.syntheticResult(guardrail.VerdictBlock, payload)
			s.observePipeline(mode, blocked)
			return blocked, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("policy resolution failed, blocking request", "mode", mode, "error", err)
		blocked := s.syntheticResult(guardrail.VerdictBlock, payload)
		s.observePipeline(mode, blocked)
		return blocked, nil
	}

	if len(res.Guardrails) == 0 {
		return s.syntheticResult(guardrail.VerdictAllow, payload), nil
	}

	pipeline := s.builder.FromResolved(res.Guardrails, mode)
	result, err := s.executor.ExecuteSteps(ctx, pipeline, payload)
	if err != nil {
		// Cancellation or timeout of the owning request; the caller
		// observes it as such, never as a block.
		return nil, err
	}

	s.observePipeline(mode, result)
	return result, nil
}

// syntheticResult builds a result for verdicts reached without running
// a pipeline. Steps is an empty slice, not nil, so these render the
// same `"steps": []` on the wire as executor results.
func (s *HookService) syntheticResult(verdict guardrail.Verdict, payload map[string]any) *guardrail.Result {
	return &guardrail.Result{
		Verdict: verdict,
		Steps:   []guardrail.StepResult{},
		Payload: payload,
	}
}

func (s *HookService) observeResolution(res policy.Resolution, err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ResolutionDuration.Observe(d.Seconds())
	switch {
	case err != nil:
		s.metrics.ResolutionsTotal.WithLabelValues("error").Inc()
	case len(res.Guardrails) == 0:
		s.metrics.ResolutionsTotal.WithLabelValues("empty").Inc()
	default:
		s.metrics.ResolutionsTotal.WithLabelValues("matched").Inc()
	}
	s.metrics.CacheSize.Set(float64(s.resolver.CacheSize()))
}

func (s *HookService) observePipeline(mode guardrail.Mode, result *guardrail.Result) {
	if s.metrics == nil {
		return
	}
	s.metrics.PipelineVerdicts.WithLabelValues(string(mode), string(result.Verdict)).Inc()
	s.metrics.PipelineDuration.WithLabelValues(string(mode)).Observe(result.Duration.Seconds())
	for _, step := range result.Steps {
		s.metrics.StepOutcomes.WithLabelValues(step.GuardrailName, string(step.Outcome)).Inc()
	}
}
