// Package admin provides the JSON management API for policies,
// attachments, and pipeline dry runs.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/railguard-io/railguard/internal/domain/guardrail"
	"github.com/railguard-io/railguard/internal/domain/policy"
	"github.com/railguard-io/railguard/internal/service"
)

// AdminAPIHandler provides JSON API endpoints for policy administration.
type AdminAPIHandler struct {
	policyAdmin     *service.PolicyAdminService
	attachmentAdmin *service.AttachmentAdminService
	resolver        *service.ResolverService
	builder         *guardrail.Builder
	executor        *guardrail.Executor
	logger          *slog.Logger
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithPolicyAdminService sets the policy CRUD service.
func WithPolicyAdminService(s *service.PolicyAdminService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.policyAdmin = s }
}

// WithAttachmentAdminService sets the attachment CRUD service.
func WithAttachmentAdminService(s *service.AttachmentAdminService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.attachmentAdmin = s }
}

// WithResolverService sets the resolver used for the resolved-guardrails
// preview endpoint.
func WithResolverService(s *service.ResolverService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.resolver = s }
}

// WithPipelineBuilder sets the builder used for pipeline dry runs.
func WithPipelineBuilder(b *guardrail.Builder) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.builder = b }
}

// WithPipelineExecutor sets the executor used for pipeline dry runs.
func WithPipelineExecutor(e *guardrail.Executor) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.executor = e }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.logger = l }
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
func (h *AdminAPIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Policy CRUD and previews.
	mux.HandleFunc("GET /policies/list", h.handleListPolicies)
	mux.HandleFunc("POST /policies", h.handleCreatePolicy)
	mux.HandleFunc("GET /policies/{id}", h.handleGetPolicy)
	mux.HandleFunc("PUT /policies/{id}", h.handleUpdatePolicy)
	mux.HandleFunc("DELETE /policies/{id}", h.handleDeletePolicy)
	mux.HandleFunc("GET /policies/{id}/resolved-guardrails", h.handleResolvedGuardrails)

	// Pipeline dry runs.
	mux.HandleFunc("POST /policies/test-pipeline", h.handleTestPipeline)

	// Attachment CRUD.
	mux.HandleFunc("GET /policies/attachments/list", h.handleListAttachments)
	mux.HandleFunc("POST /policies/attachments", h.handleCreateAttachment)
	mux.HandleFunc("GET /policies/attachments/{id}", h.handleGetAttachment)
	mux.HandleFunc("DELETE /policies/attachments/{id}", h.handleDeleteAttachment)

	return mux
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into the given value.
func (h *AdminAPIHandler) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// pathParam extracts a named path parameter from the request URL.
func (h *AdminAPIHandler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// respondDomainError maps domain errors to HTTP status codes.
func (h *AdminAPIHandler) respondDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *policy.ValidationError
		cycleErr      *policy.CycleError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &cycleErr):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, policy.ErrPolicyNotFound),
		errors.Is(err, policy.ErrAttachmentNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, policy.ErrDuplicateName),
		errors.Is(err, policy.ErrReferencedByAttachment):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("admin request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}
