package guardrails

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/railguard-io/railguard/internal/domain/guardrail"
)

func TestRemoteGuardrailApply(t *testing.T) {
	var received remoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(remoteResponse{
			Flagged: true,
			Reason:  "toxic content",
			Detail:  map[string]any{"score": 0.97},
		})
	}))
	defer srv.Close()

	g := NewRemoteGuardrail("toxicity", srv.URL, srv.Client())
	inputs := guardrail.Inputs{Texts: []string{"hello"}, Model: "gpt-4"}
	payload := map[string]any{"model": "gpt-4"}

	out, err := g.Apply(context.Background(), inputs, payload, guardrail.InputTypeRequest)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !out.Flagged || out.Reason != "toxic content" {
		t.Errorf("out = %+v", out)
	}
	if out.Detail["score"] != 0.97 {
		t.Errorf("Detail = %v", out.Detail)
	}

	if !reflect.DeepEqual(received.Inputs.Texts, []string{"hello"}) {
		t.Errorf("service saw texts %v", received.Inputs.Texts)
	}
	if received.Inputs.Model != "gpt-4" {
		t.Errorf("service saw model %q", received.Inputs.Model)
	}
	if received.InputType != "request" {
		t.Errorf("service saw input_type %q", received.InputType)
	}
	if received.RequestData["model"] != "gpt-4" {
		t.Errorf("service saw request_data %v", received.RequestData)
	}
}

func TestRemoteGuardrailTransformedTexts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{Texts: []string{"[MASKED]"}, Reason: "masked 1 span"})
	}))
	defer srv.Close()

	g := NewRemoteGuardrail("masker", srv.URL, srv.Client())
	out, err := g.Apply(context.Background(), guardrail.Inputs{Texts: []string{"secret"}}, nil, guardrail.InputTypeRequest)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out.Flagged {
		t.Error("unflagged transformation reported as violation")
	}
	if !reflect.DeepEqual(out.Texts, []string{"[MASKED]"}) {
		t.Errorf("Texts = %v", out.Texts)
	}
}

func TestRemoteGuardrailErrors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		g := NewRemoteGuardrail("flaky", srv.URL, srv.Client())
		if _, err := g.Apply(context.Background(), guardrail.Inputs{}, nil, guardrail.InputTypeRequest); err == nil {
			t.Error("Apply() succeeded on a 500 response")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		g := NewRemoteGuardrail("garbled", srv.URL, srv.Client())
		if _, err := g.Apply(context.Background(), guardrail.Inputs{}, nil, guardrail.InputTypeRequest); err == nil {
			t.Error("Apply() succeeded on a malformed body")
		}
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		g := NewRemoteGuardrail("down", srv.URL, nil)
		if _, err := g.Apply(context.Background(), guardrail.Inputs{}, nil, guardrail.InputTypeRequest); err == nil {
			t.Error("Apply() succeeded against a closed server")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		g := NewRemoteGuardrail("slow", srv.URL, srv.Client())
		if _, err := g.Apply(ctx, guardrail.Inputs{}, nil, guardrail.InputTypeRequest); err == nil {
			t.Error("Apply() succeeded with a cancelled context")
		}
	})
}
