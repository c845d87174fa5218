// Package schema validates documents against JSON Schemas. The built-in
// header contract covers the jacs* header fields every document must carry;
// document-type schemas (referenced through the document's $schema field)
// are registered by the caller and validated on top of it.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/header.schema.json
var headerSchemaJSON []byte

// Validator implements interfaces.SchemaValidator. Compiled schemas are
// cached; registration and validation are safe for concurrent use.
type Validator struct {
	header *gojsonschema.Schema

	mu         sync.RWMutex
	registered map[string]*gojsonschema.Schema
}

// NewValidator compiles the built-in header contract.
func NewValidator() (*Validator, error) {
	header, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(headerSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile header schema: %w", err)
	}
	return &Validator{
		header:     header,
		registered: make(map[string]*gojsonschema.Schema),
	}, nil
}

// Register compiles and stores a document-type schema under ref, the value
// documents carry in their $schema field.
func (v *Validator) Register(ref string, raw []byte) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", ref, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.registered[ref] = compiled
	return nil
}

// Registered lists the refs of all registered document-type schemas.
func (v *Validator) Registered() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	refs := make([]string, 0, len(v.registered))
	for ref := range v.registered {
		refs = append(refs, ref)
	}
	return refs
}

// Validate checks document against the header contract and, when schemaRef
// names a registered schema, against that schema too. An unregistered ref is
// not an error: document types are open-ended and the header contract alone
// still guards the integrity-bearing fields.
func (v *Validator) Validate(document map[string]any, schemaRef string) error {
	loader := gojsonschema.NewGoLoader(document)

	if err := v.check(v.header, loader, "header"); err != nil {
		return err
	}

	if schemaRef == "" {
		return nil
	}
	v.mu.RLock()
	compiled, ok := v.registered[schemaRef]
	v.mu.RUnlock()
	if !ok {
		return nil
	}
	return v.check(compiled, loader, schemaRef)
}

func (v *Validator) check(compiled *gojsonschema.Schema, loader gojsonschema.JSONLoader, name string) error {
	result, err := compiled.Validate(loader)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", interfaces.ErrSchemaValidation, name, err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("%w: %s: %s", interfaces.ErrSchemaValidation, name, strings.Join(details, "; "))
}
