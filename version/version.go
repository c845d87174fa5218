// Package version stamps and validates the version lineage of documents.
// A document's identity (jacsId) is fixed at creation; every mutation
// produces a new immutable version linked to its predecessor through
// jacsPreviousVersion, so a lineage forms a simple linked list from the
// original version to the current tip.
package version

import (
	"fmt"
	"time"

	"github.com/jacsproject/jacs-go/interfaces"
)

// Create stamps fresh identity and version headers onto content and returns
// the result as a new map; content is not modified. Any identity or version
// fields already present in content are overwritten: a created document
// always starts a new lineage.
func Create(content map[string]any) map[string]any {
	doc := make(map[string]any, len(content)+6)
	for k, v := range content {
		doc[k] = v
	}

	now := time.Now().UTC().Format(time.RFC3339)
	versionID := interfaces.NewVersionID().String()

	doc[interfaces.FieldID] = interfaces.NewDocumentID().String()
	doc[interfaces.FieldVersion] = versionID
	doc[interfaces.FieldVersionDate] = now
	doc[interfaces.FieldOriginalVersion] = versionID
	doc[interfaces.FieldOriginalDate] = now
	delete(doc, interfaces.FieldPreviousVersion)

	return doc
}

// Update builds the successor version of current from newContent. The new
// version keeps the document identity and original-version markers of
// current, receives a fresh version id and date, and links back to current
// through jacsPreviousVersion. newContent may carry the same jacsId as
// current or none at all; any other identity is rejected.
//
// The returned document is unhashed and unsigned: the caller re-canonicalizes
// and re-signs it.
func Update(current, newContent map[string]any) (map[string]any, error) {
	currentID, ok := current[interfaces.FieldID].(string)
	if !ok || currentID == "" {
		return nil, fmt.Errorf("current version has no document id")
	}

	if claimed, present := newContent[interfaces.FieldID]; present {
		claimedID, ok := claimed.(string)
		if !ok || claimedID != currentID {
			return nil, fmt.Errorf("update content claims document id %v, current is %s", claimed, currentID)
		}
	}

	currentVersion, ok := current[interfaces.FieldVersion].(string)
	if !ok || currentVersion == "" {
		return nil, fmt.Errorf("current version has no version id")
	}

	doc := make(map[string]any, len(newContent)+6)
	for k, v := range newContent {
		doc[k] = v
	}

	doc[interfaces.FieldID] = currentID
	doc[interfaces.FieldVersion] = interfaces.NewVersionID().String()
	doc[interfaces.FieldVersionDate] = time.Now().UTC().Format(time.RFC3339)
	doc[interfaces.FieldPreviousVersion] = currentVersion
	doc[interfaces.FieldOriginalVersion] = current[interfaces.FieldOriginalVersion]
	doc[interfaces.FieldOriginalDate] = current[interfaces.FieldOriginalDate]

	// Stale integrity material from the previous version must never ride
	// along into the new one. A registration covers the version fields, so
	// it cannot survive an update either; the attester registers the new
	// version if it wants to.
	delete(doc, interfaces.FieldSha256)
	delete(doc, interfaces.FieldSignature)
	delete(doc, interfaces.FieldRegistration)

	return doc, nil
}
