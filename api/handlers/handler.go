// Package handlers implements the HTTP API of the document service: a thin
// consumer of the document engine. Handlers decode JSON, invoke the engine
// and map the core's error taxonomy onto HTTP status codes; no integrity
// logic lives here.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jacsproject/jacs-go/document"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/metrics"
	"github.com/jacsproject/jacs-go/signing"
)

// Handler serves document operations. The handler signs create/update/
// agreement operations with the service's own agent; verification accepts
// documents signed by any agent the key provider can resolve.
type Handler struct {
	engine *document.Engine
	agent  signing.AgentContext
	keys   interfaces.KeyProvider
	log    *slog.Logger
}

// New creates a Handler.
func New(engine *document.Engine, agent signing.AgentContext, keys interfaces.KeyProvider, log *slog.Logger) *Handler {
	return &Handler{engine: engine, agent: agent, keys: keys, log: log}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("Failed to write response", slog.Any("err", err))
	}
}

// writeError maps the core's error taxonomy to HTTP status codes. The
// distinction between "could not verify" and "verification failed" survives
// into the status code: key resolution problems are 502, cryptographic
// failures are 422.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrCanonicalization),
		errors.Is(err, interfaces.ErrSchemaValidation):
		status = http.StatusBadRequest
	case errors.Is(err, interfaces.ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrAgentNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, interfaces.ErrVersionConflict),
		errors.Is(err, interfaces.ErrStaleTerms),
		errors.Is(err, interfaces.ErrStanceRecorded):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrDigestMismatch),
		errors.Is(err, interfaces.ErrSignatureInvalid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrKeyResolution),
		errors.Is(err, interfaces.ErrBackendUnavailable):
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return nil, false
	}
	doc, err := document.Parse(body)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return doc, true
}

// HandleCreate creates a signed document from the request payload.
// POST /api/v1/documents
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	content, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	doc, err := h.engine.Create(r.Context(), h.agent, content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	metrics.DocumentsCreated.Inc()
	h.writeJSON(w, http.StatusCreated, doc)
}

// HandleUpdate produces the next version of a stored document.
// POST /api/v1/documents/{id}/versions
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	newContent, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	current, err := h.loadTip(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	doc, err := h.engine.Update(r.Context(), h.agent, current, newContent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	metrics.DocumentsUpdated.Inc()
	h.writeJSON(w, http.StatusCreated, doc)
}

// HandleGet returns the current version of a document.
// GET /api/v1/documents/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.loadTip(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// HandleGetVersion returns one specific version.
// GET /api/v1/documents/{id}/versions/{version}
func (h *Handler) HandleGetVersion(w http.ResponseWriter, r *http.Request) {
	doc, err := h.engine.Load(r.Context(),
		interfaces.DocumentID(chi.URLParam(r, "id")),
		interfaces.VersionID(chi.URLParam(r, "version")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// HandleHistory returns all versions of a document, oldest first.
// GET /api/v1/documents/{id}/history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.engine.History(r.Context(), interfaces.DocumentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// verifyResponse is the wire form of a verification result.
type verifyResponse struct {
	Verified       bool   `json:"verified"`
	DigestOK       bool   `json:"digestOk"`
	SignatureOK    bool   `json:"signatureOk"`
	Registration   string `json:"registration,omitempty"`
	AgreementState string `json:"agreementState,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HandleVerify verifies a document supplied in the request body. The
// endpoint answers 200 for both outcomes: the verdict is the payload, not
// the status code. Only malformed requests are 4xx.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	result := h.engine.Verify(r.Context(), h.keys, doc)
	resp := verifyResponse{
		Verified:    result.Verified,
		DigestOK:    result.DigestOK,
		SignatureOK: result.SignatureOK,
	}
	if result.RegistrationFound {
		resp.Registration = "invalid"
		if result.RegistrationOK {
			resp.Registration = "valid"
		}
	}
	if result.AgreementFound {
		resp.AgreementState = result.AgreementState.String()
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	outcome := "verified"
	if !result.Verified {
		outcome = "failed"
		if errors.Is(result.Err, interfaces.ErrKeyResolution) {
			outcome = "unverified"
		}
	}
	metrics.VerificationsTotal.WithLabelValues(outcome).Inc()

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) loadTip(r *http.Request) (map[string]any, error) {
	history, err := h.engine.History(r.Context(), interfaces.DocumentID(chi.URLParam(r, "id")))
	if err != nil {
		return nil, err
	}
	return history[len(history)-1], nil
}
