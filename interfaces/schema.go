package interfaces

// SchemaValidator validates a document against a JSON schema reference.
// The integrity core requires every document to validate against the header
// contract before it will hash or sign it; domain-specific payload validation
// is layered on top by composition and is out of scope here.
type SchemaValidator interface {
	// Validate returns an error wrapping ErrSchemaValidation when the
	// document does not conform to the referenced schema.
	Validate(document map[string]any, schemaRef string) error
}
