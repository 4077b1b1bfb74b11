package admin

import (
	"net/http"
	"time"

	"github.com/railguard-io/railguard/internal/domain/policy"
)

// attachmentRequest is the JSON request body for creating an attachment.
type attachmentRequest struct {
	PolicyName string   `json:"policy_name"`
	Scope      string   `json:"scope,omitempty"`
	Teams      []string `json:"teams,omitempty"`
	Keys       []string `json:"keys,omitempty"`
	Models     []string `json:"models,omitempty"`
}

// attachmentResponse is the JSON response for a single attachment.
type attachmentResponse struct {
	ID         string    `json:"id"`
	PolicyName string    `json:"policy_name"`
	Scope      string    `json:"scope"`
	Teams      []string  `json:"teams,omitempty"`
	Keys       []string  `json:"keys,omitempty"`
	Models     []string  `json:"models,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// toAttachmentResponse converts a domain attachment to an API response.
func toAttachmentResponse(a *policy.Attachment) attachmentResponse {
	return attachmentResponse{
		ID:         a.ID,
		PolicyName: a.PolicyName,
		Scope:      a.Scope,
		Teams:      a.Teams,
		Keys:       a.Keys,
		Models:     a.Models,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// handleListAttachments returns all attachments.
// GET /policies/attachments/list
func (h *AdminAPIHandler) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	attachments, err := h.attachmentAdmin.List(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	result := make([]attachmentResponse, len(attachments))
	for i := range attachments {
		result[i] = toAttachmentResponse(&attachments[i])
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"attachments": result,
		"total_count": len(result),
	})
}

// handleCreateAttachment creates a new attachment from the request body.
// POST /policies/attachments
func (h *AdminAPIHandler) handleCreateAttachment(w http.ResponseWriter, r *http.Request) {
	var req attachmentRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	created, err := h.attachmentAdmin.Create(r.Context(), &policy.Attachment{
		PolicyName: req.PolicyName,
		Scope:      req.Scope,
		Teams:      req.Teams,
		Keys:       req.Keys,
		Models:     req.Models,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, toAttachmentResponse(created))
}

// handleGetAttachment returns a single attachment by ID.
// GET /policies/attachments/{id}
func (h *AdminAPIHandler) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	a, err := h.attachmentAdmin.Get(r.Context(), h.pathParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toAttachmentResponse(a))
}

// handleDeleteAttachment removes an attachment by ID.
// DELETE /policies/attachments/{id}
func (h *AdminAPIHandler) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := h.attachmentAdmin.Delete(r.Context(), h.pathParam(r, "id")); err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
