package canonical

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerDoc(extra map[string]any) map[string]any {
	doc := map[string]any{
		"$schema":             "https://jacs.example/schemas/header/v1",
		"jacsId":              "0e3b7a4d-7cbe-4ed8-9f0a-1c2d3e4f5a6b",
		"jacsVersion":         "7f8e9dab-0c1d-2e3f-4a5b-6c7d8e9f0a1b",
		"jacsVersionDate":     "2025-06-01T12:00:00Z",
		"jacsOriginalVersion": "7f8e9dab-0c1d-2e3f-4a5b-6c7d8e9f0a1b",
		"jacsOriginalDate":    "2025-06-01T12:00:00Z",
		"jacsType":            "commitment",
		"jacsLevel":           "raw",
	}
	for k, v := range extra {
		doc[k] = v
	}
	return doc
}

func TestFields_SortedAndExcludesSelfReferential(t *testing.T) {
	doc := headerDoc(map[string]any{
		"zeta":              "z",
		"alpha":             "a",
		"jacsSha256":        "deadbeef",
		"jacsSignature":     map[string]any{"agentID": "x"},
		"jacsRegistration":  map[string]any{"agentID": "y"},
		"jacsAgreement":     map[string]any{"agentIDs": []any{}},
		"jacsAgreementHash": "cafe",
	})

	fields, err := Fields(doc, ModeDigest)
	require.NoError(t, err)

	assert.NotContains(t, fields, "jacsSha256")
	assert.NotContains(t, fields, "jacsSignature")
	assert.NotContains(t, fields, "jacsRegistration")
	assert.NotContains(t, fields, "jacsAgreement")
	assert.Contains(t, fields, "jacsAgreementHash", "digest scope covers the agreement hash")

	// Lexicographic order regardless of insertion order.
	for i := 1; i < len(fields); i++ {
		assert.Less(t, fields[i-1], fields[i])
	}

	signFields, err := Fields(doc, ModeSign)
	require.NoError(t, err)
	assert.NotContains(t, signFields, "jacsAgreementHash", "signing scope leaves the agreement hash out")
}

func TestFields_MissingHeaderField(t *testing.T) {
	doc := headerDoc(nil)
	delete(doc, "jacsOriginalDate")

	_, err := Fields(doc, ModeDigest)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrCanonicalization)
}

func TestDigestFields_Deterministic(t *testing.T) {
	doc := headerDoc(map[string]any{
		"jacsCommitmentDescription": "Deliver report",
		"jacsCommitmentStatus":      "pending",
		"nested": map[string]any{
			"b": float64(2),
			"a": []any{"x", map[string]any{"k2": "v2", "k1": "v1"}},
		},
	})

	fields, err := Fields(doc, ModeDigest)
	require.NoError(t, err)

	first, err := DigestFields(doc, fields)
	require.NoError(t, err)
	second, err := DigestFields(doc, fields)
	require.NoError(t, err)
	assert.True(t, first.Equal(second), "repeated digests must be byte-identical")

	// A structurally equal document built in a different order digests the same.
	redecoded := map[string]any{}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &redecoded))

	third, err := DigestFields(redecoded, fields)
	require.NoError(t, err)
	assert.True(t, first.Equal(third))
}

func TestDigestFields_ValueChangeChangesDigest(t *testing.T) {
	doc := headerDoc(map[string]any{"jacsCommitmentStatus": "pending"})
	fields, err := Fields(doc, ModeDigest)
	require.NoError(t, err)

	before, err := DigestFields(doc, fields)
	require.NoError(t, err)

	doc["jacsCommitmentStatus"] = "active"
	after, err := DigestFields(doc, fields)
	require.NoError(t, err)

	assert.False(t, before.Equal(after))
}

func TestDigestFields_DeletedCoveredFieldChangesDigest(t *testing.T) {
	doc := headerDoc(map[string]any{"payload": "value"})
	fields, err := Fields(doc, ModeDigest)
	require.NoError(t, err)

	before, err := DigestFields(doc, fields)
	require.NoError(t, err)

	delete(doc, "payload")
	after, err := DigestFields(doc, fields)
	require.NoError(t, err)

	assert.False(t, before.Equal(after))
}

func TestTermsFields_ExcludesVersionAndStatus(t *testing.T) {
	doc := headerDoc(map[string]any{
		"jacsPreviousVersion":       "11111111-2222-3333-4444-555555555555",
		"jacsAgreementHash":         "cafe",
		"jacsCommitmentDescription": "Deliver report",
		"jacsCommitmentStatus":      "pending",
	})

	terms, err := TermsFields(doc, []string{"jacsCommitmentStatus"})
	require.NoError(t, err)

	assert.Contains(t, terms, "jacsCommitmentDescription")
	assert.NotContains(t, terms, "jacsCommitmentStatus")
	assert.NotContains(t, terms, "jacsVersion")
	assert.NotContains(t, terms, "jacsVersionDate")
	assert.NotContains(t, terms, "jacsPreviousVersion")
	assert.NotContains(t, terms, "jacsAgreementHash")
}

func TestTermsDigest_SurvivesVersionBump(t *testing.T) {
	doc := headerDoc(map[string]any{"jacsCommitmentDescription": "Deliver report"})
	terms, err := TermsFields(doc, nil)
	require.NoError(t, err)
	before, err := DigestFields(doc, terms)
	require.NoError(t, err)

	doc["jacsVersion"] = "99999999-8888-7777-6666-555555555555"
	doc["jacsVersionDate"] = "2025-06-02T12:00:00Z"
	doc["jacsPreviousVersion"] = "7f8e9dab-0c1d-2e3f-4a5b-6c7d8e9f0a1b"

	after, err := DigestFields(doc, terms)
	require.NoError(t, err)
	assert.True(t, before.Equal(after), "version metadata must not disturb the terms digest")
}

func TestMarshal_SortsNestedKeys(t *testing.T) {
	got, err := Marshal(map[string]any{
		"b": map[string]any{"y": float64(1), "x": float64(2)},
		"a": []any{map[string]any{"n": nil, "m": true}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[{"m":true,"n":null}],"b":{"x":2,"y":1}}`, string(got))
}

func TestMarshal_NormalizesStructs(t *testing.T) {
	sig := interfaces.Signature{
		AgentID:          "agent",
		AgentVersion:     "v",
		Date:             "2025-06-01T12:00:00Z",
		Signature:        "c2ln",
		PublicKeyHash:    "00",
		SigningAlgorithm: interfaces.AlgorithmEd25519,
		Fields:           []string{"a"},
	}
	got, err := Marshal(map[string]any{"sig": sig})
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, json.Unmarshal(got, &round))
	inner, ok := round["sig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "agent", inner["agentID"])
}

func TestMarshal_PreservesNumberText(t *testing.T) {
	var doc map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"n": 10.50, "i": 3}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&doc))

	got, err := Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"i":3,"n":10.50}`, string(got))
}
