package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jacsproject/jacs-go/metrics"
)

type proposeRequest struct {
	AgentIDs []string `json:"agentIDs"`
	Question string   `json:"question,omitempty"`
	Context  string   `json:"context,omitempty"`
}

type disagreeRequest struct {
	Reason string `json:"reason"`
}

// HandleProposeAgreement attaches an agreement to the document's current
// version and stores the result as a new version.
// POST /api/v1/documents/{id}/agreement
func (h *Handler) HandleProposeAgreement(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	doc, err := h.mutateTip(r, func(doc map[string]any) error {
		return h.engine.ProposeAgreement(r.Context(), doc, req.AgentIDs, req.Question, req.Context)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	metrics.AgreementMutations.WithLabelValues("propose").Inc()
	h.writeJSON(w, http.StatusCreated, doc)
}

// HandleSignAgreement records the service agent's consent to the current
// terms and stores the result as a new version.
// POST /api/v1/documents/{id}/agreement/sign
func (h *Handler) HandleSignAgreement(w http.ResponseWriter, r *http.Request) {
	doc, err := h.mutateTip(r, func(doc map[string]any) error {
		return h.engine.SignAgreement(r.Context(), h.agent, doc)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	metrics.AgreementMutations.WithLabelValues("sign").Inc()
	h.writeJSON(w, http.StatusCreated, doc)
}

// HandleDisagreeAgreement records the service agent's signed refusal.
// POST /api/v1/documents/{id}/agreement/disagree
func (h *Handler) HandleDisagreeAgreement(w http.ResponseWriter, r *http.Request) {
	var req disagreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if req.Reason == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "disagreement requires a reason"})
		return
	}

	doc, err := h.mutateTip(r, func(doc map[string]any) error {
		return h.engine.DisagreeAgreement(r.Context(), h.agent, doc, req.Reason)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	metrics.AgreementMutations.WithLabelValues("disagree").Inc()
	h.writeJSON(w, http.StatusCreated, doc)
}

// mutateTip loads the document tip, applies the mutation and stores the
// mutated document as the tip's successor version. Agreement mutations ride
// the version chain so concurrent agreement rounds linearize through the
// storage backend's conflict detection.
func (h *Handler) mutateTip(r *http.Request, mutate func(doc map[string]any) error) (map[string]any, error) {
	current, err := h.loadTip(r)
	if err != nil {
		return nil, err
	}

	working := make(map[string]any, len(current))
	for k, v := range current {
		working[k] = v
	}
	if err := mutate(working); err != nil {
		return nil, err
	}
	return h.engine.Update(r.Context(), h.agent, current, working)
}
