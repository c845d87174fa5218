package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jacsproject/jacs-go/interfaces"
)

// FileBackend stores document versions on the local file system, one
// directory per document, one JSON file per version.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

func (b *FileBackend) versionPath(id interfaces.DocumentID, version interfaces.VersionID) string {
	return filepath.Join(b.baseDir, id.String(), version.String()+".json")
}

// Put stores one version. An existing file for the same version is a
// conflict: stored versions are immutable.
func (b *FileBackend) Put(ctx context.Context, ref interfaces.VersionRef, data []byte) error {
	dir := filepath.Join(b.baseDir, ref.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	path := b.versionPath(ref.ID, ref.Version)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: version %s already stored", interfaces.ErrVersionConflict, ref)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document version: %w", err)
	}

	b.log.Debug("Stored document version",
		slog.String("ref", ref.String()),
		slog.Int("size", len(data)))
	return nil
}

// Get retrieves one stored version.
func (b *FileBackend) Get(ctx context.Context, id interfaces.DocumentID, version interfaces.VersionID) ([]byte, error) {
	data, err := os.ReadFile(b.versionPath(id, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", interfaces.ErrDocumentNotFound, id, version)
		}
		return nil, fmt.Errorf("failed to read document version: %w", err)
	}
	return data, nil
}

// Versions lists all stored version ids of a document.
func (b *FileBackend) Versions(ctx context.Context, id interfaces.DocumentID) ([]interfaces.VersionID, error) {
	entries, err := os.ReadDir(filepath.Join(b.baseDir, id.String()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list document versions: %w", err)
	}

	versions := make([]interfaces.VersionID, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		versions = append(versions, interfaces.VersionID(strings.TrimSuffix(name, ".json")))
	}
	return versions, nil
}

// Available checks the base directory is accessible.
func (b *FileBackend) Available(ctx context.Context) bool {
	info, err := os.Stat(b.baseDir)
	return err == nil && info.IsDir()
}

// Name returns the backend identifier.
func (b *FileBackend) Name() string { return "file" }

// LocationURI returns the backend URI.
func (b *FileBackend) LocationURI() string { return b.locationURI }
