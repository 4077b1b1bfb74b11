package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/railguard-io/railguard/internal/adapter/outbound/memory"
	"github.com/railguard-io/railguard/internal/domain/guardrail"
	"github.com/railguard-io/railguard/internal/domain/policy"
	"github.com/railguard-io/railguard/internal/service"
)

type transportFixture struct {
	policies    *memory.PolicyStore
	attachments *memory.AttachmentStore
	registry    *memory.GuardrailRegistry
	handler     http.Handler
}

func newTransportFixture(t *testing.T) *transportFixture {
	t.Helper()
	policies := memory.NewPolicyStore()
	attachments := memory.NewAttachmentStore()
	registry := memory.NewGuardrailRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	promReg := prometheus.NewRegistry()
	resolver := service.NewResolverService(policies, attachments, logger)
	hooks := service.NewHookService(
		resolver,
		guardrail.NewBuilder(registry),
		guardrail.NewExecutor(registry, guardrail.WithLogger(logger)),
		service.NewMetrics(promReg),
		logger,
	)

	transport := NewHTTPTransport(hooks,
		WithRegistry(promReg),
		WithLogger(logger),
		WithAdminHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})),
	)
	return &transportFixture{
		policies:    policies,
		attachments: attachments,
		registry:    registry,
		handler:     transport.Handler(),
	}
}

func (f *transportFixture) seed(t *testing.T, addGuardrails []string) {
	t.Helper()
	ctx := context.Background()
	if err := f.policies.Create(ctx, &policy.Policy{ID: "pol-1", Name: "base", GuardrailsAdd: addGuardrails}); err != nil {
		t.Fatalf("create policy: %v", err)
	}
	if err := f.attachments.Create(ctx, &policy.Attachment{ID: "att-1", PolicyName: "base", Scope: policy.ScopeGlobal}); err != nil {
		t.Fatalf("create attachment: %v", err)
	}
}

func (f *transportFixture) post(t *testing.T, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestPreCallHook(t *testing.T) {
	f := newTransportFixture(t)
	f.seed(t, []string{"blocklist"})
	f.registry.Register("blocklist", guardrail.CapabilityFunc(func(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
		for _, text := range inputs.Texts {
			if strings.Contains(text, "forbidden") {
				return guardrail.Output{Flagged: true, Reason: "blocked keyword"}, nil
			}
		}
		return guardrail.Output{}, nil
	}))

	t.Run("allow", func(t *testing.T) {
		rec := f.post(t, "/hooks/pre-call", map[string]any{
			"team_id": "team-a",
			"request_data": map[string]any{
				"messages": []map[string]any{{"role": "user", "content": "hello"}},
			},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var result guardrail.Result
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if result.Verdict != guardrail.VerdictAllow {
			t.Errorf("verdict = %q", result.Verdict)
		}
	})

	t.Run("block", func(t *testing.T) {
		rec := f.post(t, "/hooks/pre-call", map[string]any{
			"team_id": "team-a",
			"request_data": map[string]any{
				"messages": []map[string]any{{"role": "user", "content": "forbidden topic"}},
			},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var result guardrail.Result
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if result.Verdict != guardrail.VerdictBlock {
			t.Errorf("verdict = %q", result.Verdict)
		}
		if len(result.Steps) != 1 || result.Steps[0].Outcome != guardrail.OutcomeFail {
			t.Errorf("steps = %+v", result.Steps)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/hooks/pre-call", strings.NewReader("not json"))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestPostCallHook(t *testing.T) {
	f := newTransportFixture(t)
	f.seed(t, []string{"inspector"})

	var sawInputType guardrail.InputType
	f.registry.Register("inspector", guardrail.CapabilityFunc(func(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
		sawInputType = inputType
		return guardrail.Output{}, nil
	}))

	rec := f.post(t, "/hooks/post-call", map[string]any{
		"team_id": "team-a",
		"request_data": map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "response text"}}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if sawInputType != guardrail.InputTypeResponse {
		t.Errorf("input type = %q, want response", sawInputType)
	}
}

func TestHookRedactionInResponse(t *testing.T) {
	f := newTransportFixture(t)
	f.seed(t, []string{"redactor"})
	f.registry.Register("redactor", guardrail.CapabilityFunc(func(ctx context.Context, inputs guardrail.Inputs, payload map[string]any, inputType guardrail.InputType) (guardrail.Output, error) {
		return guardrail.Output{Texts: []string{"[REDACTED]"}}, nil
	}))

	rec := f.post(t, "/hooks/pre-call", map[string]any{
		"team_id": "team-a",
		"request_data": map[string]any{
			"messages": []map[string]any{{"role": "user", "content": "ssn 123-45-6789"}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result guardrail.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	texts := guardrail.ExtractTexts(result.Payload, guardrail.InputTypeRequest)
	if len(texts) != 1 || texts[0] != "[REDACTED]" {
		t.Errorf("payload texts = %v", texts)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	f := newTransportFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	var health map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil || health["status"] != "ok" {
		t.Errorf("healthz body = %s (err %v)", rec.Body.String(), err)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "railguard_http_requests_total") {
		t.Error("transport metrics missing from /metrics output")
	}
}

func TestAdminMounting(t *testing.T) {
	f := newTransportFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/policies/list", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Errorf("admin route status = %d, want the mounted handler's response", rec.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policies := memory.NewPolicyStore()
	attachments := memory.NewAttachmentStore()
	registry := memory.NewGuardrailRegistry()
	promReg := prometheus.NewRegistry()
	hooks := service.NewHookService(
		service.NewResolverService(policies, attachments, logger),
		guardrail.NewBuilder(registry),
		guardrail.NewExecutor(registry, guardrail.WithLogger(logger)),
		service.NewMetrics(promReg),
		logger,
	)
	transport := NewHTTPTransport(hooks,
		WithAddr("127.0.0.1:0"),
		WithRegistry(promReg),
		WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- transport.Start(ctx) }()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() returned %v after cancellation", err)
	}
}
