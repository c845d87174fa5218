package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacsproject/jacs-go/interfaces"
)

// MemoryBackend is an in-memory document store with full linearization
// support. Used in tests and as the reference for conflict semantics.
type MemoryBackend struct {
	mu sync.RWMutex
	// documents[docID][versionID] holds the stored bytes.
	documents map[interfaces.DocumentID]map[interfaces.VersionID][]byte
	// claimed[docID][previousVersion] records which version claims each
	// predecessor, enforcing at most one successor per version.
	claimed map[interfaces.DocumentID]map[interfaces.VersionID]interfaces.VersionID
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		documents: make(map[interfaces.DocumentID]map[interfaces.VersionID][]byte),
		claimed:   make(map[interfaces.DocumentID]map[interfaces.VersionID]interfaces.VersionID),
	}
}

// Put stores one version. Returns interfaces.ErrVersionConflict when another
// version of the same document already claims ref.Previous, or when two
// distinct payloads arrive under the same version id.
func (b *MemoryBackend) Put(ctx context.Context, ref interfaces.VersionRef, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	versions, ok := b.documents[ref.ID]
	if !ok {
		versions = make(map[interfaces.VersionID][]byte)
		b.documents[ref.ID] = versions
		b.claimed[ref.ID] = make(map[interfaces.VersionID]interfaces.VersionID)
	}

	if _, exists := versions[ref.Version]; exists {
		return fmt.Errorf("%w: version %s already stored", interfaces.ErrVersionConflict, ref)
	}
	if ref.Previous != "" {
		if winner, taken := b.claimed[ref.ID][ref.Previous]; taken && winner != ref.Version {
			return fmt.Errorf("%w: version %s already claims predecessor %s", interfaces.ErrVersionConflict, winner, ref.Previous)
		}
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	versions[ref.Version] = stored
	if ref.Previous != "" {
		b.claimed[ref.ID][ref.Previous] = ref.Version
	}
	return nil
}

// Get retrieves one stored version.
func (b *MemoryBackend) Get(ctx context.Context, id interfaces.DocumentID, version interfaces.VersionID) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.documents[id][version]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", interfaces.ErrDocumentNotFound, id, version)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Versions lists all stored version ids of a document, unordered.
func (b *MemoryBackend) Versions(ctx context.Context, id interfaces.DocumentID) ([]interfaces.VersionID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	versions := make([]interfaces.VersionID, 0, len(b.documents[id]))
	for version := range b.documents[id] {
		versions = append(versions, version)
	}
	return versions, nil
}

// Available always reports true.
func (b *MemoryBackend) Available(ctx context.Context) bool { return true }

// Name returns the backend identifier.
func (b *MemoryBackend) Name() string { return "memory" }

// LocationURI returns the backend URI.
func (b *MemoryBackend) LocationURI() string { return "mem://" }
