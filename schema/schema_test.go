package schema_test

import (
	"testing"

	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/schema"
	"github.com/jacsproject/jacs-go/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDoc() map[string]any {
	return version.Create(map[string]any{
		"$schema":   "https://jacs.postfiat.org/schemas/task/v1",
		"jacsType":  "task",
		"jacsLevel": "artifact",
		"title":     "write report",
	})
}

func TestHeaderContractAcceptsValidDocument(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	require.NoError(t, validator.Validate(validDoc(), ""))
}

func TestHeaderContractRejectsViolations(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(doc map[string]any)
	}{
		{"missing id", func(doc map[string]any) { delete(doc, interfaces.FieldID) }},
		{"non-uuid id", func(doc map[string]any) { doc[interfaces.FieldID] = "not-a-uuid" }},
		{"unknown level", func(doc map[string]any) { doc[interfaces.FieldLevel] = "secret" }},
		{"empty type", func(doc map[string]any) { doc[interfaces.FieldType] = "" }},
		{"malformed digest", func(doc map[string]any) { doc[interfaces.FieldSha256] = "xyz" }},
		{"bad agreement hash", func(doc map[string]any) { doc[interfaces.FieldAgreementHash] = "XYZ" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := validDoc()
			tc.mutate(doc)
			err := validator.Validate(doc, "")
			assert.ErrorIs(t, err, interfaces.ErrSchemaValidation)
		})
	}
}

func TestRegisteredTypeSchema(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	taskSchema := []byte(`{
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string", "minLength": 3}
		}
	}`)
	ref := "https://jacs.postfiat.org/schemas/task/v1"
	require.NoError(t, validator.Register(ref, taskSchema))
	assert.Contains(t, validator.Registered(), ref)

	require.NoError(t, validator.Validate(validDoc(), ref))

	doc := validDoc()
	doc["title"] = "x"
	err = validator.Validate(doc, ref)
	assert.ErrorIs(t, err, interfaces.ErrSchemaValidation)
}

func TestUnregisteredRefStillChecksHeader(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	require.NoError(t, validator.Validate(validDoc(), "https://example.com/unknown"))

	doc := validDoc()
	delete(doc, interfaces.FieldVersion)
	err = validator.Validate(doc, "https://example.com/unknown")
	assert.ErrorIs(t, err, interfaces.ErrSchemaValidation)
}

func TestRegisterRejectsMalformedSchema(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	err = validator.Register("bad", []byte(`{"type": 42}`))
	assert.Error(t, err)
}
