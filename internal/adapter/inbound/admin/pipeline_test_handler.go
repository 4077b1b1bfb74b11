package admin

import (
	"errors"
	"net/http"

	"github.com/railguard-io/railguard/internal/domain/guardrail"
)

// testPipelineRequest is the JSON request body for a pipeline dry run:
// an explicit pipeline spec plus the payload to run it against.
type testPipelineRequest struct {
	Pipeline    guardrail.PipelineSpec `json:"pipeline"`
	RequestData map[string]any         `json:"request_data"`
}

// testStepResponse is one visited step in a dry-run response.
type testStepResponse struct {
	StepIndex     int    `json:"step_index"`
	GuardrailName string `json:"guardrail_name"`
	Outcome       string `json:"outcome"`
	ActionTaken   string `json:"action_taken"`
	DurationMS    int64  `json:"duration_ms"`
	Detail        string `json:"detail,omitempty"`
}

// testPipelineResponse is the full outcome of a pipeline dry run.
type testPipelineResponse struct {
	Verdict    string             `json:"verdict"`
	Steps      []testStepResponse `json:"steps"`
	Payload    map[string]any     `json:"payload,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// handleTestPipeline validates an explicit pipeline spec, executes it
// against the submitted payload, and returns the full trace. Validation
// failures are client errors; execution failures show up in the trace as
// error outcomes, not HTTP errors.
// POST /policies/test-pipeline
func (h *AdminAPIHandler) handleTestPipeline(w http.ResponseWriter, r *http.Request) {
	var req testPipelineRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	pipeline, err := h.builder.FromSpec(req.Pipeline)
	if err != nil {
		var validationErr *guardrail.ValidationError
		if errors.As(err, &validationErr) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondDomainError(w, err)
		return
	}

	result, err := h.executor.ExecuteSteps(r.Context(), pipeline, req.RequestData)
	if err != nil {
		// Only cancellation surfaces as an error from the executor.
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	steps := make([]testStepResponse, len(result.Steps))
	for i, s := range result.Steps {
		steps[i] = testStepResponse{
			StepIndex:     s.StepIndex,
			GuardrailName: s.GuardrailName,
			Outcome:       string(s.Outcome),
			ActionTaken:   s.ActionTaken,
			DurationMS:    s.Duration.Milliseconds(),
			Detail:        s.Detail,
		}
	}

	h.respondJSON(w, http.StatusOK, testPipelineResponse{
		Verdict:    string(result.Verdict),
		Steps:      steps,
		Payload:    result.Payload,
		DurationMS: result.Duration.Milliseconds(),
	})
}
