package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/railguard-io/railguard/internal/domain/guardrail"
)

// defaultRemoteTimeout bounds a remote apply call when the client has
// no timeout configured.
const defaultRemoteTimeout = 10 * time.Second

// maxRemoteResponseBytes caps how much of a guardrail service response
// is read; larger responses are malformed by definition.
const maxRemoteResponseBytes = 1 << 20

// RemoteGuardrail invokes an external guardrail service over HTTP. The
// wire format mirrors the invocation contract: the service receives the
// extracted texts, model, full payload, and input type, and answers
// with possibly transformed texts and a flagged marker.
type RemoteGuardrail struct {
	name     string
	endpoint string
	client   *http.Client
}

// remoteRequest is the JSON body sent to the guardrail service.
type remoteRequest struct {
	Inputs struct {
		Texts []string `json:"texts"`
		Model string   `json:"model,omitempty"`
	} `json:"inputs"`
	RequestData map[string]any `json:"request_data"`
	InputType   string         `json:"input_type"`
}

// remoteResponse is the JSON body returned by the guardrail service.
type remoteResponse struct {
	Texts   []string       `json:"texts,omitempty"`
	Flagged bool           `json:"flagged"`
	Reason  string         `json:"reason,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// NewRemoteGuardrail creates a client for the guardrail service at the
// given endpoint. A nil httpClient gets a default with a bounded timeout.
func NewRemoteGuardrail(name, endpoint string, httpClient *http.Client) *RemoteGuardrail {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRemoteTimeout}
	}
	return &RemoteGuardrail{name: name, endpoint: endpoint, client: httpClient}
}

// Apply implements guardrail.Capability. A 2xx response with flagged
// set is a violation; any transport error, non-2xx status, or malformed
// body is a technical failure the executor treats as an error outcome.
func (g *RemoteGuardrail) Apply(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
	var reqBody remoteRequest
	reqBody.Inputs.Texts = inputs.Texts
	reqBody.Inputs.Model = inputs.Model
	reqBody.RequestData = payload
	reqBody.InputType = string(inputType)

	body, err := json.Marshal(reqBody)
	if err != nil {
		return guardrail.Output{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return guardrail.Output{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return guardrail.Output{}, fmt.Errorf("call guardrail %q: %w", g.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return guardrail.Output{}, fmt.Errorf("guardrail %q returned status %d", g.name, resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteResponseBytes)).Decode(&out); err != nil {
		return guardrail.Output{}, fmt.Errorf("decode guardrail %q response: %w", g.name, err)
	}

	if out.Flagged {
		return guardrail.Output{
			Texts:   out.Texts,
			Flagged: true,
			Reason:  out.Reason,
			Detail:  out.Detail,
		}, nil
	}
	return guardrail.Output{Texts: out.Texts, Reason: out.Reason, Detail: out.Detail}, nil
}

// Compile-time interface verification.
var _ guardrail.Capability = (*RemoteGuardrail)(nil)
