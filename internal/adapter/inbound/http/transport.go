// Package http provides the HTTP transport for the policy engine: the
// hook endpoints the gateway calls on the request path, the mounted
// admin API, health, and metrics.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/railguard-io/railguard/internal/domain/guardrail"
	"github.com/railguard-io/railguard/internal/domain/policy"
	"github.com/railguard-io/railguard/internal/service"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// HTTPTransport serves the policy engine over HTTP.
type HTTPTransport struct {
	hooks        *service.HookService
	adminHandler http.Handler
	registry     *prometheus.Registry
	server       *http.Server
	addr         string
	metrics      *Metrics
	logger       *slog.Logger
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address. Default is "127.0.0.1:8600".
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) { t.addr = addr }
}

// WithAdminHandler mounts the admin API under /admin/api/.
func WithAdminHandler(h http.Handler) Option {
	return func(t *HTTPTransport) { t.adminHandler = h }
}

// WithRegistry sets the Prometheus registry backing /metrics. A fresh
// registry with standard collectors is created when unset.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(t *HTTPTransport) { t.registry = reg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) { t.logger = logger }
}

// NewHTTPTransport creates the transport around the hook service.
func NewHTTPTransport(hooks *service.HookService, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		hooks:  hooks,
		addr:   "127.0.0.1:8600",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Registry returns the Prometheus registry backing /metrics, creating
// it with the standard Go and process collectors on first use.
func (t *HTTPTransport) Registry() *prometheus.Registry {
	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
		t.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return t.registry
}

// Handler builds the full route tree.
func (t *HTTPTransport) Handler() http.Handler {
	reg := t.Registry()
	if t.metrics == nil {
		t.metrics = NewMetrics(reg)
	}

	mux := http.NewServeMux()

	// Request-path hooks called by the gateway.
	mux.HandleFunc("POST /hooks/pre-call", t.handleHook(t.hooks.PreCall))
	mux.HandleFunc("POST /hooks/post-call", t.handleHook(t.hooks.PostCall))

	if t.adminHandler != nil {
		mux.Handle("/admin/api/", http.StripPrefix("/admin/api", t.adminHandler))
	}

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return MetricsMiddleware(t.metrics)(mux)
}

// Start begins serving and blocks until the context is cancelled or the
// server fails.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", t.addr)
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

// hookRequest is the JSON body the gateway sends for each hook call.
type hookRequest struct {
	TeamID      string         `json:"team_id,omitempty"`
	KeyID       string         `json:"key_id,omitempty"`
	Model       string         `json:"model,omitempty"`
	RequestData map[string]any `json:"request_data"`
}

// handleHook adapts a hook service method to an HTTP handler.
func (t *HTTPTransport) handleHook(hook func(context.Context, policy.RequestContext, map[string]any) (*guardrail.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req hookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
			return
		}

		rc := policy.RequestContext{TeamID: req.TeamID, KeyID: req.KeyID, Model: req.Model}
		result, err := hook(r.Context(), rc, req.RequestData)
		if err != nil {
			// Only cancellation escapes the hook service as an error.
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
