// Package document orchestrates the integrity core into caller-facing
// create, update and verify operations. A document is created once, updated
// into new linked versions, and verifiable at every version: the header
// contract holds, the integrity digest matches the content, the author's
// signature checks out against the fields it covered, and any attached
// registration and agreement do too.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jacsproject/jacs-go/agreement"
	"github.com/jacsproject/jacs-go/canonical"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/signing"
	"github.com/jacsproject/jacs-go/version"
)

// Engine wires schema validation, versioning, signing and optional
// persistence into one surface. All operations are safe to invoke
// concurrently on independent documents.
type Engine struct {
	validator interfaces.SchemaValidator
	storage   interfaces.DocumentStorage
	log       *slog.Logger

	// statusFields maps a document type to the payload fields excluded from
	// its agreement terms. The boundary is declared explicitly per type,
	// never inferred from field names.
	statusFields map[string][]string
}

// Config collects Engine dependencies. Storage is optional: without it the
// engine is a pure computation layer and Load/History are unavailable.
type Config struct {
	Validator    interfaces.SchemaValidator
	Storage      interfaces.DocumentStorage
	Log          *slog.Logger
	StatusFields map[string][]string
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Validator == nil {
		return nil, fmt.Errorf("document engine requires a schema validator")
	}
	if cfg.Log == nil {
		return nil, fmt.Errorf("document engine requires a logger")
	}
	statusFields := cfg.StatusFields
	if statusFields == nil {
		statusFields = make(map[string][]string)
	}
	return &Engine{
		validator:    cfg.Validator,
		storage:      cfg.Storage,
		log:          cfg.Log,
		statusFields: statusFields,
	}, nil
}

// StatusFields returns the terms-excluded status fields for a document type.
func (e *Engine) StatusFields(docType string) []string {
	return e.statusFields[docType]
}

func docType(doc map[string]any) string {
	t, _ := doc[interfaces.FieldType].(string)
	return t
}

func schemaRef(doc map[string]any) string {
	ref, _ := doc[interfaces.FieldSchema].(string)
	return ref
}

// Create stamps identity and version headers onto content, validates it,
// signs it as agent and seals it with the integrity digest. The result is a
// self-describing signed document; when the engine has storage, it is also
// persisted.
func (e *Engine) Create(ctx context.Context, agent signing.AgentContext, content map[string]any) (map[string]any, error) {
	doc := version.Create(content)

	if err := e.seal(ctx, agent, doc); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, doc); err != nil {
		return nil, err
	}

	e.log.Info("Created document",
		slog.String("doc_id", fmt.Sprint(doc[interfaces.FieldID])),
		slog.String("doc_type", docType(doc)),
		slog.String("agent_id", agent.AgentID.String()))
	return doc, nil
}

// Update builds the successor version of current from newContent, re-signs
// and re-seals it as agent. If the document carries an agreement and the
// substantive terms changed, all collected consent is voided and the
// agreement rebinds to the new terms.
func (e *Engine) Update(ctx context.Context, agent signing.AgentContext, current, newContent map[string]any) (map[string]any, error) {
	doc, err := version.Update(current, newContent)
	if err != nil {
		return nil, err
	}

	stale, err := agreement.Stale(doc, e.statusFields[docType(doc)])
	if err != nil {
		return nil, err
	}
	if stale {
		if err := agreement.Reset(doc, e.statusFields[docType(doc)]); err != nil {
			return nil, err
		}
		e.log.Info("Terms changed, agreement consent voided",
			slog.String("doc_id", fmt.Sprint(doc[interfaces.FieldID])))
	}

	if err := e.seal(ctx, agent, doc); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, doc); err != nil {
		return nil, err
	}

	e.log.Info("Updated document",
		slog.String("doc_id", fmt.Sprint(doc[interfaces.FieldID])),
		slog.String("version", fmt.Sprint(doc[interfaces.FieldVersion])),
		slog.String("agent_id", agent.AgentID.String()))
	return doc, nil
}

// seal validates doc, signs it as agent and computes the integrity digest.
// The digest is computed last among mutable fields so it covers everything
// but the signature bodies.
func (e *Engine) seal(ctx context.Context, agent signing.AgentContext, doc map[string]any) error {
	delete(doc, interfaces.FieldSha256)
	delete(doc, interfaces.FieldSignature)

	if err := e.validator.Validate(doc, schemaRef(doc)); err != nil {
		return err
	}

	signFields, err := canonical.Fields(doc, canonical.ModeSign)
	if err != nil {
		return err
	}
	sig, err := signing.Sign(ctx, agent, doc, signFields)
	if err != nil {
		return err
	}
	if err := putSignature(doc, interfaces.FieldSignature, sig); err != nil {
		return err
	}

	return e.rehash(doc)
}

// rehash recomputes the integrity digest over the document's current
// content. Called after any mutation of digest-covered fields, including
// agreement hash changes.
func (e *Engine) rehash(doc map[string]any) error {
	delete(doc, interfaces.FieldSha256)
	digest, _, err := canonical.HashDocument(doc, canonical.ModeDigest)
	if err != nil {
		return err
	}
	doc[interfaces.FieldSha256] = digest.String()
	return nil
}

func (e *Engine) persist(ctx context.Context, doc map[string]any) error {
	if e.storage == nil {
		return nil
	}
	ref := interfaces.VersionRef{
		ID:      interfaces.DocumentID(fmt.Sprint(doc[interfaces.FieldID])),
		Version: interfaces.VersionID(fmt.Sprint(doc[interfaces.FieldVersion])),
	}
	if previous, ok := doc[interfaces.FieldPreviousVersion].(string); ok {
		ref.Previous = interfaces.VersionID(previous)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	if err := e.storage.Put(ctx, ref, data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", ref, err)
	}
	return nil
}

// Load retrieves one stored version.
func (e *Engine) Load(ctx context.Context, id interfaces.DocumentID, ver interfaces.VersionID) (map[string]any, error) {
	if e.storage == nil {
		return nil, fmt.Errorf("%w: engine has no storage", interfaces.ErrBackendUnavailable)
	}
	data, err := e.storage.Get(ctx, id, ver)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// History loads every stored version of a document and linearizes the chain,
// oldest first.
func (e *Engine) History(ctx context.Context, id interfaces.DocumentID) ([]map[string]any, error) {
	if e.storage == nil {
		return nil, fmt.Errorf("%w: engine has no storage", interfaces.ErrBackendUnavailable)
	}
	versionIDs, err := e.storage.Versions(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(versionIDs) == 0 {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrDocumentNotFound, id)
	}

	docs := make([]map[string]any, 0, len(versionIDs))
	for _, ver := range versionIDs {
		data, err := e.storage.Get(ctx, id, ver)
		if err != nil {
			return nil, err
		}
		doc, err := Parse(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return version.History(docs)
}

// Parse decodes serialized document bytes. Numbers keep their exact wire
// text so a parse/serialize round trip cannot shift the canonical digest
// input.
func Parse(data []byte) (map[string]any, error) {
	doc, err := canonical.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCanonicalization, err)
	}
	return doc, nil
}

// putSignature embeds a signature record into doc under field as a plain
// map, keeping the document JSON-native.
func putSignature(doc map[string]any, field string, sig interfaces.Signature) error {
	encoded, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to encode signature: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(encoded, &asMap); err != nil {
		return fmt.Errorf("failed to encode signature: %w", err)
	}
	doc[field] = asMap
	return nil
}

func getSignature(doc map[string]any, field string) (interfaces.Signature, bool, error) {
	raw, ok := doc[field]
	if !ok || raw == nil {
		return interfaces.Signature{}, false, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return interfaces.Signature{}, false, fmt.Errorf("%w: malformed %s", interfaces.ErrSignatureInvalid, field)
	}
	var sig interfaces.Signature
	if err := json.Unmarshal(encoded, &sig); err != nil {
		return interfaces.Signature{}, false, fmt.Errorf("%w: malformed %s", interfaces.ErrSignatureInvalid, field)
	}
	return sig, true, nil
}
