package admin

import (
	"net/http"
	"time"

	"github.com/railguard-io/railguard/internal/domain/policy"
)

// policyRequest is the JSON request body for creating a policy.
type policyRequest struct {
	Name             string   `json:"name"`
	Inherit          string   `json:"inherit,omitempty"`
	Description      string   `json:"description,omitempty"`
	GuardrailsAdd    []string `json:"guardrails_add,omitempty"`
	GuardrailsRemove []string `json:"guardrails_remove,omitempty"`
	Condition        string   `json:"condition,omitempty"`
	CreatedBy        string   `json:"created_by,omitempty"`
}

// policyUpdateRequest is the JSON request body for updating a policy.
// Absent fields are left unchanged; the name is immutable.
type policyUpdateRequest struct {
	Inherit          *string   `json:"inherit"`
	Description      *string   `json:"description"`
	GuardrailsAdd    *[]string `json:"guardrails_add"`
	GuardrailsRemove *[]string `json:"guardrails_remove"`
	Condition        *string   `json:"condition"`
	UpdatedBy        string    `json:"updated_by"`
}

// policyResponse is the JSON response for a single policy.
type policyResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Inherit          string    `json:"inherit,omitempty"`
	Description      string    `json:"description,omitempty"`
	GuardrailsAdd    []string  `json:"guardrails_add"`
	GuardrailsRemove []string  `json:"guardrails_remove,omitempty"`
	Condition        string    `json:"condition,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	CreatedBy        string    `json:"created_by,omitempty"`
	UpdatedBy        string    `json:"updated_by,omitempty"`
}

// toPolicyResponse converts a domain policy to an API response.
func toPolicyResponse(p *policy.Policy) policyResponse {
	return policyResponse{
		ID:               p.ID,
		Name:             p.Name,
		Inherit:          p.Inherit,
		Description:      p.Description,
		GuardrailsAdd:    p.GuardrailsAdd,
		GuardrailsRemove: p.GuardrailsRemove,
		Condition:        p.Condition,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		CreatedBy:        p.CreatedBy,
		UpdatedBy:        p.UpdatedBy,
	}
}

// handleListPolicies returns all policies.
// GET /policies/list
func (h *AdminAPIHandler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policyAdmin.List(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	result := make([]policyResponse, len(policies))
	for i := range policies {
		result[i] = toPolicyResponse(&policies[i])
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"policies":    result,
		"total_count": len(result),
	})
}

// handleCreatePolicy creates a new policy from the request body.
// POST /policies
func (h *AdminAPIHandler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	created, err := h.policyAdmin.Create(r.Context(), &policy.Policy{
		Name:             req.Name,
		Inherit:          req.Inherit,
		Description:      req.Description,
		GuardrailsAdd:    req.GuardrailsAdd,
		GuardrailsRemove: req.GuardrailsRemove,
		Condition:        req.Condition,
		CreatedBy:        req.CreatedBy,
		UpdatedBy:        req.CreatedBy,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, toPolicyResponse(created))
}

// handleGetPolicy returns a single policy by ID.
// GET /policies/{id}
func (h *AdminAPIHandler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.policyAdmin.Get(r.Context(), h.pathParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toPolicyResponse(p))
}

// handleUpdatePolicy applies a partial update to an existing policy.
// PUT /policies/{id}
func (h *AdminAPIHandler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyUpdateRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	updated, err := h.policyAdmin.Update(r.Context(), h.pathParam(r, "id"), policy.Update{
		Inherit:          req.Inherit,
		Description:      req.Description,
		GuardrailsAdd:    req.GuardrailsAdd,
		GuardrailsRemove: req.GuardrailsRemove,
		Condition:        req.Condition,
		UpdatedBy:        req.UpdatedBy,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, toPolicyResponse(updated))
}

// handleDeletePolicy removes a policy by ID.
// DELETE /policies/{id}
func (h *AdminAPIHandler) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.policyAdmin.Delete(r.Context(), h.pathParam(r, "id")); err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleResolvedGuardrails previews the effective guardrail set for a
// policy after walking its inheritance chain.
// GET /policies/{id}/resolved-guardrails
func (h *AdminAPIHandler) handleResolvedGuardrails(w http.ResponseWriter, r *http.Request) {
	p, err := h.policyAdmin.Get(r.Context(), h.pathParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	res, err := h.resolver.ResolveForPolicy(r.Context(), p.Name)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"policy_name": p.Name,
		"chain":       res.Chain,
		"guardrails":  res.Guardrails,
	})
}
