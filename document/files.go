package document

import (
	"encoding/base64"
	"fmt"

	"github.com/jacsproject/jacs-go/interfaces"
)

// FileAttachment describes one external file bound to a document through its
// content digest. Embedded attachments carry the content itself, base64
// encoded; detached ones carry only the digest the caller can verify the
// file against.
type FileAttachment struct {
	Path     string `json:"path"`
	MIMEType string `json:"mimetype,omitempty"`
	SHA256   string `json:"sha256"`
	Embed    bool   `json:"embed,omitempty"`
	Contents string `json:"contents,omitempty"`
}

// AttachFile records data as an attachment of doc under jacsFiles. The entry
// replaces any previous attachment with the same path. jacsFiles is
// digest-covered, so the caller reseals the document afterwards (Update does
// this; direct mutations need Engine.rehash via a fresh Create/Update).
func AttachFile(doc map[string]any, path, mimeType string, data []byte, embed bool) error {
	if path == "" {
		return fmt.Errorf("attachment requires a path")
	}

	entry := map[string]any{
		"path":   path,
		"sha256": interfaces.ComputeDigest(data).String(),
	}
	if mimeType != "" {
		entry["mimetype"] = mimeType
	}
	if embed {
		entry["embed"] = true
		entry["contents"] = base64.StdEncoding.EncodeToString(data)
	}

	var files []any
	if existing, ok := doc[interfaces.FieldFiles].([]any); ok {
		for _, raw := range existing {
			if m, ok := raw.(map[string]any); ok && m["path"] == path {
				continue
			}
			files = append(files, raw)
		}
	}
	doc[interfaces.FieldFiles] = append(files, entry)
	return nil
}

// VerifyFile checks data against the digest recorded for path in jacsFiles.
// A mismatch wraps interfaces.ErrDigestMismatch; an unknown path is an
// ordinary error.
func VerifyFile(doc map[string]any, path string, data []byte) error {
	files, ok := doc[interfaces.FieldFiles].([]any)
	if !ok {
		return fmt.Errorf("document has no attachments")
	}

	for _, raw := range files {
		entry, ok := raw.(map[string]any)
		if !ok || entry["path"] != path {
			continue
		}
		recorded, _ := entry["sha256"].(string)
		actual := interfaces.ComputeDigest(data).String()
		if recorded != actual {
			return fmt.Errorf("%w: attachment %s digests to %s, document records %s",
				interfaces.ErrDigestMismatch, path, actual, recorded)
		}
		return nil
	}
	return fmt.Errorf("no attachment with path %s", path)
}

// ExtractFile returns the embedded content of an attachment.
func ExtractFile(doc map[string]any, path string) ([]byte, error) {
	files, ok := doc[interfaces.FieldFiles].([]any)
	if !ok {
		return nil, fmt.Errorf("document has no attachments")
	}

	for _, raw := range files {
		entry, ok := raw.(map[string]any)
		if !ok || entry["path"] != path {
			continue
		}
		contents, _ := entry["contents"].(string)
		if contents == "" {
			return nil, fmt.Errorf("attachment %s is not embedded", path)
		}
		data, err := base64.StdEncoding.DecodeString(contents)
		if err != nil {
			return nil, fmt.Errorf("attachment %s has malformed contents: %w", path, err)
		}
		if err := VerifyFile(doc, path, data); err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, fmt.Errorf("no attachment with path %s", path)
}
