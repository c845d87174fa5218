package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jacsproject/jacs-go/api/handlers"
	"github.com/jacsproject/jacs-go/document"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/keys"
	"github.com/jacsproject/jacs-go/schema"
	"github.com/jacsproject/jacs-go/signing"
	"github.com/jacsproject/jacs-go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	validator, err := schema.NewValidator()
	require.NoError(t, err)

	engine, err := document.NewEngine(document.Config{
		Validator: validator,
		Storage:   storage.NewMemoryBackend(),
		Log:       logger,
	})
	require.NoError(t, err)

	provider := keys.NewMemoryProvider()
	agentID := interfaces.AgentID(uuid.New().String())
	_, err = provider.Generate(agentID, interfaces.AlgorithmEd25519)
	require.NoError(t, err)
	agent := signing.AgentContext{
		AgentID:      agentID,
		AgentVersion: interfaces.NewVersionID(),
		Algorithm:    interfaces.AlgorithmEd25519,
		Keys:         provider,
	}

	handler := handlers.New(engine, agent, provider, logger)

	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		DrainDuration:            10 * time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, handler)
	require.NoError(t, err)
	return srv
}

func TestLivenessAndReadiness(t *testing.T) {
	srv := newTestServer(t)
	router := srv.getRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDrainTogglesReadiness(t *testing.T) {
	srv := newTestServer(t)
	router := srv.getRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drain", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Draining twice is not an error.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drain", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/undrain", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentRoutesAreWired(t *testing.T) {
	srv := newTestServer(t)
	router := srv.getRouter()

	payload, err := json.Marshal(map[string]any{
		"$schema":   "https://jacs.postfiat.org/schemas/task/v1",
		"jacsType":  "task",
		"jacsLevel": "artifact",
		"title":     "route check",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)

	doc, err := document.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	id := doc[interfaces.FieldID].(string)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	srv := newTestServer(t)
	router := srv.getRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv.cfg.EnablePprof = true
	router = srv.getRouter()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
