package document_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jacsproject/jacs-go/document"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/keys"
	"github.com/jacsproject/jacs-go/schema"
	"github.com/jacsproject/jacs-go/signing"
	"github.com/jacsproject/jacs-go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, store interfaces.DocumentStorage) *document.Engine {
	t.Helper()
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	engine, err := document.NewEngine(document.Config{
		Validator: validator,
		Storage:   store,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		StatusFields: map[string][]string{
			"commitment": {"jacsCommitmentStatus"},
		},
	})
	require.NoError(t, err)
	return engine
}

func newAgent(t *testing.T, provider *keys.MemoryProvider, algorithm interfaces.SigningAlgorithm) signing.AgentContext {
	t.Helper()
	agentID := interfaces.AgentID(uuid.New().String())
	_, err := provider.Generate(agentID, algorithm)
	require.NoError(t, err)
	return signing.AgentContext{
		AgentID:      agentID,
		AgentVersion: interfaces.NewVersionID(),
		Algorithm:    algorithm,
		Keys:         provider,
	}
}

func taskContent() map[string]any {
	return map[string]any{
		"$schema":   "https://jacs.postfiat.org/schemas/task/v1",
		"jacsType":  "task",
		"jacsLevel": "artifact",
		"title":     "write report",
	}
}

func TestCreateProducesVerifiableDocument(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	agent := newAgent(t, provider, interfaces.AlgorithmEd25519)
	ctx := context.Background()

	doc, err := engine.Create(ctx, agent, taskContent())
	require.NoError(t, err)

	assert.NotEmpty(t, doc[interfaces.FieldSha256])
	assert.NotEmpty(t, doc[interfaces.FieldSignature])

	result := engine.Verify(ctx, provider, doc)
	require.NoError(t, result.Err)
	assert.True(t, result.Verified)
	assert.True(t, result.DigestOK)
	assert.True(t, result.SignatureOK)
	assert.False(t, result.RegistrationFound)
}

func TestVerifyDetectsTamperedField(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	agent := newAgent(t, provider, interfaces.AlgorithmEd25519)
	ctx := context.Background()

	doc, err := engine.Create(ctx, agent, taskContent())
	require.NoError(t, err)

	doc["title"] = "write report (altered)"
	result := engine.Verify(ctx, provider, doc)
	assert.False(t, result.Verified)
	assert.ErrorIs(t, result.Err, interfaces.ErrDigestMismatch)
}

func TestSignedSerializeDeserializeVerifyRoundTrip(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	agent := newAgent(t, provider, interfaces.AlgorithmRSAPSS)
	ctx := context.Background()

	content := taskContent()
	content["budget"] = json.Number("10.50")
	doc, err := engine.Create(ctx, agent, content)
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	restored, err := document.Parse(data)
	require.NoError(t, err)

	result := engine.Verify(ctx, provider, restored)
	require.NoError(t, result.Err)
	assert.True(t, result.Verified)

	// One character of a covered field changes between serialize and parse.
	tampered := strings.Replace(string(data), "write report", "write retort", 1)
	restored, err = document.Parse([]byte(tampered))
	require.NoError(t, err)
	result = engine.Verify(ctx, provider, restored)
	assert.False(t, result.Verified)
}

func TestCommitmentSigningScenario(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	agent := newAgent(t, provider, interfaces.AlgorithmEd25519)
	ctx := context.Background()

	doc, err := engine.Create(ctx, agent, map[string]any{
		"$schema":                   "https://jacs.postfiat.org/schemas/commitment/v1",
		"jacsType":                  "commitment",
		"jacsLevel":                 "artifact",
		"jacsCommitmentDescription": "Deliver report",
		"jacsCommitmentStatus":      "pending",
	})
	require.NoError(t, err)

	sigMap, ok := doc[interfaces.FieldSignature].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, sigMap["signingAlgorithm"])

	covered, ok := sigMap["fields"].([]any)
	require.True(t, ok)
	asStrings := make([]string, len(covered))
	for i, f := range covered {
		asStrings[i] = f.(string)
	}
	assert.Contains(t, asStrings, "jacsCommitmentDescription")
	assert.Contains(t, asStrings, "jacsCommitmentStatus")

	result := engine.Verify(ctx, provider, doc)
	require.NoError(t, result.Err)
	require.True(t, result.Verified)

	// Status flip must fail against the original signature.
	doc["jacsCommitmentStatus"] = "active"
	result = engine.Verify(ctx, provider, doc)
	assert.False(t, result.Verified)
}

func TestUpdateCreatesLinkedVerifiableVersion(t *testing.T) {
	provider := keys.NewMemoryProvider()
	store := storage.NewMemoryBackend()
	engine := newEngine(t, store)
	agent := newAgent(t, provider, interfaces.AlgorithmEd25519)
	ctx := context.Background()

	doc, err := engine.Create(ctx, agent, taskContent())
	require.NoError(t, err)

	newContent := taskContent()
	newContent[interfaces.FieldID] = doc[interfaces.FieldID]
	newContent["title"] = "write report v2"
	updated, err := engine.Update(ctx, agent, doc, newContent)
	require.NoError(t, err)

	assert.Equal(t, doc[interfaces.FieldVersion], updated[interfaces.FieldPreviousVersion])
	assert.Equal(t, doc[interfaces.FieldOriginalVersion], updated[interfaces.FieldOriginalVersion])

	// Both versions verify independently.
	for _, d := range []map[string]any{doc, updated} {
		result := engine.Verify(ctx, provider, d)
		require.NoError(t, result.Err)
		assert.True(t, result.Verified)
	}

	history, err := engine.History(ctx, interfaces.DocumentID(doc[interfaces.FieldID].(string)))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "write report", history[0]["title"])
	assert.Equal(t, "write report v2", history[1]["title"])
}

func TestConcurrentUpdateConflictSurfaces(t *testing.T) {
	provider := keys.NewMemoryProvider()
	store := storage.NewMemoryBackend()
	engine := newEngine(t, store)
	agent := newAgent(t, provider, interfaces.AlgorithmEd25519)
	ctx := context.Background()

	doc, err := engine.Create(ctx, agent, taskContent())
	require.NoError(t, err)

	first := taskContent()
	first["title"] = "first writer"
	_, err = engine.Update(ctx, agent, doc, first)
	require.NoError(t, err)

	second := taskContent()
	second["title"] = "second writer"
	_, err = engine.Update(ctx, agent, doc, second)
	assert.ErrorIs(t, err, interfaces.ErrVersionConflict)
}

func TestRegistrationCountersignature(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	author := newAgent(t, provider, interfaces.AlgorithmEd25519)
	registrar := newAgent(t, provider, interfaces.AlgorithmMLDSA)
	ctx := context.Background()

	doc, err := engine.Create(ctx, author, taskContent())
	require.NoError(t, err)

	require.NoError(t, engine.Register(ctx, registrar, doc))

	result := engine.Verify(ctx, provider, doc)
	require.NoError(t, result.Err)
	assert.True(t, result.Verified)
	assert.True(t, result.RegistrationFound)
	assert.True(t, result.RegistrationOK)

	// Registering never requires re-signing by the author.
	sigMap := doc[interfaces.FieldSignature].(map[string]any)
	assert.Equal(t, author.AgentID.String(), sigMap["agentID"])
	regMap := doc[interfaces.FieldRegistration].(map[string]any)
	assert.Equal(t, registrar.AgentID.String(), regMap["agentID"])
}

func TestUpdateOfRegisteredDocumentVerifies(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	author := newAgent(t, provider, interfaces.AlgorithmEd25519)
	registrar := newAgent(t, provider, interfaces.AlgorithmMLDSA)
	ctx := context.Background()

	doc, err := engine.Create(ctx, author, taskContent())
	require.NoError(t, err)
	require.NoError(t, engine.Register(ctx, registrar, doc))

	// Update from a wholesale copy of the registered tip, the way the API's
	// agreement routes do. The registration covers the version fields, so it
	// must not ride along into the successor.
	newContent := make(map[string]any, len(doc))
	for k, v := range doc {
		newContent[k] = v
	}
	newContent["title"] = "write report v2"
	updated, err := engine.Update(ctx, author, doc, newContent)
	require.NoError(t, err)

	assert.NotContains(t, updated, interfaces.FieldRegistration)

	result := engine.Verify(ctx, provider, updated)
	require.NoError(t, result.Err)
	assert.True(t, result.Verified)
	assert.False(t, result.RegistrationFound)

	// The registered version itself still verifies.
	result = engine.Verify(ctx, provider, doc)
	require.NoError(t, result.Err)
	assert.True(t, result.RegistrationOK)
}

func TestRegisterRejectsUnsignedDocument(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	registrar := newAgent(t, provider, interfaces.AlgorithmEd25519)

	err := engine.Register(context.Background(), registrar, taskContent())
	assert.ErrorIs(t, err, interfaces.ErrSignatureInvalid)
}

func TestAgreementThroughEngine(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	a := newAgent(t, provider, interfaces.AlgorithmEd25519)
	b := newAgent(t, provider, interfaces.AlgorithmEd25519)
	ctx := context.Background()

	doc, err := engine.Create(ctx, a, map[string]any{
		"$schema":                   "https://jacs.postfiat.org/schemas/commitment/v1",
		"jacsType":                  "commitment",
		"jacsLevel":                 "artifact",
		"jacsCommitmentDescription": "Deliver report",
		"jacsCommitmentStatus":      "pending",
	})
	require.NoError(t, err)

	require.NoError(t, engine.ProposeAgreement(ctx, doc,
		[]string{a.AgentID.String(), b.AgentID.String()}, "Commit?", "planning"))

	// Attaching the agreement reseals the digest without breaking the
	// author signature.
	result := engine.Verify(ctx, provider, doc)
	require.NoError(t, result.Err)
	require.True(t, result.Verified)
	assert.True(t, result.AgreementFound)
	assert.Equal(t, interfaces.AgreementDraft, result.AgreementState)

	require.NoError(t, engine.SignAgreement(ctx, a, doc))
	result = engine.Verify(ctx, provider, doc)
	require.NoError(t, result.Err)
	assert.Equal(t, interfaces.AgreementPartial, result.AgreementState)

	require.NoError(t, engine.SignAgreement(ctx, b, doc))
	result = engine.Verify(ctx, provider, doc)
	require.NoError(t, result.Err)
	assert.Equal(t, interfaces.AgreementFull, result.AgreementState)

	// Status change leaves consent intact because status fields sit outside
	// the commitment's terms.
	doc["jacsCommitmentStatus"] = "active"
	_, err = engine.Update(ctx, a, doc, doc)
	require.NoError(t, err)
}

func TestTermsChangeVoidsConsentOnUpdate(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	a := newAgent(t, provider, interfaces.AlgorithmEd25519)
	ctx := context.Background()

	doc, err := engine.Create(ctx, a, map[string]any{
		"$schema":                   "https://jacs.postfiat.org/schemas/commitment/v1",
		"jacsType":                  "commitment",
		"jacsLevel":                 "artifact",
		"jacsCommitmentDescription": "Deliver report",
		"jacsCommitmentStatus":      "pending",
	})
	require.NoError(t, err)

	require.NoError(t, engine.ProposeAgreement(ctx, doc, []string{a.AgentID.String()}, "Commit?", ""))
	require.NoError(t, engine.SignAgreement(ctx, a, doc))

	newContent := make(map[string]any, len(doc))
	for k, v := range doc {
		newContent[k] = v
	}
	newContent["jacsCommitmentDescription"] = "Deliver report and slides"

	updated, err := engine.Update(ctx, a, doc, newContent)
	require.NoError(t, err)

	result := engine.Verify(ctx, provider, updated)
	require.NoError(t, result.Err)
	require.True(t, result.AgreementFound)
	assert.Equal(t, interfaces.AgreementDraft, result.AgreementState)
}

func TestUnknownSignerFailsClosed(t *testing.T) {
	provider := keys.NewMemoryProvider()
	engine := newEngine(t, nil)
	agent := newAgent(t, provider, interfaces.AlgorithmEd25519)
	ctx := context.Background()

	doc, err := engine.Create(ctx, agent, taskContent())
	require.NoError(t, err)

	result := engine.Verify(ctx, keys.NewMemoryProvider(), doc)
	assert.False(t, result.Verified)
	assert.ErrorIs(t, result.Err, interfaces.ErrKeyResolution)
}
