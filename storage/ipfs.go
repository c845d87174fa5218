package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/jacsproject/jacs-go/interfaces"
)

// IPFSBackend stores document versions through an IPFS node's MFS (mutable
// file system) under /<root>/<docID>/<versionID>.json, so versions stay
// addressable by document id while content remains content-addressed
// underneath.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates an IPFS storage backend connected to the node API
// at host:port. root is the MFS directory documents live under.
func NewIPFSBackend(host, port, root string, log *slog.Logger) (*IPFSBackend, error) {
	if root == "" {
		root = "/jacs"
	}
	apiURL := fmt.Sprintf("%s:%s", host, port)

	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiURL, root),
	}, nil
}

func (b *IPFSBackend) versionPath(id interfaces.DocumentID, version interfaces.VersionID) string {
	return path.Join(b.root, id.String(), version.String()+".json")
}

// Put stores one version.
func (b *IPFSBackend) Put(ctx context.Context, ref interfaces.VersionRef, data []byte) error {
	start := time.Now()
	if !b.shell.IsUp() {
		return fmt.Errorf("%w: ipfs node %s:%s", interfaces.ErrBackendUnavailable, b.host, b.port)
	}

	filePath := b.versionPath(ref.ID, ref.Version)
	err := b.shell.FilesWrite(ctx, filePath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
	)
	if err != nil {
		return fmt.Errorf("%w: ipfs write %s: %v", interfaces.ErrBackendUnavailable, filePath, err)
	}

	b.log.Debug("Stored document version in IPFS",
		slog.String("ref", ref.String()),
		slog.String("path", filePath),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Get retrieves one stored version.
func (b *IPFSBackend) Get(ctx context.Context, id interfaces.DocumentID, version interfaces.VersionID) ([]byte, error) {
	if !b.shell.IsUp() {
		return nil, fmt.Errorf("%w: ipfs node %s:%s", interfaces.ErrBackendUnavailable, b.host, b.port)
	}

	filePath := b.versionPath(id, version)
	reader, err := b.shell.FilesRead(ctx, filePath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "no link named") {
			return nil, fmt.Errorf("%w: %s/%s", interfaces.ErrDocumentNotFound, id, version)
		}
		return nil, fmt.Errorf("%w: ipfs read %s: %v", interfaces.ErrBackendUnavailable, filePath, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read ipfs content: %w", err)
	}
	return data, nil
}

// Versions lists all stored version ids of a document.
func (b *IPFSBackend) Versions(ctx context.Context, id interfaces.DocumentID) ([]interfaces.VersionID, error) {
	if !b.shell.IsUp() {
		return nil, fmt.Errorf("%w: ipfs node %s:%s", interfaces.ErrBackendUnavailable, b.host, b.port)
	}

	entries, err := b.shell.FilesLs(ctx, path.Join(b.root, id.String()))
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: ipfs ls: %v", interfaces.ErrBackendUnavailable, err)
	}

	versions := make([]interfaces.VersionID, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name, ".json") {
			versions = append(versions, interfaces.VersionID(strings.TrimSuffix(entry.Name, ".json")))
		}
	}
	return versions, nil
}

// Available checks the IPFS node is reachable.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns the backend identifier.
func (b *IPFSBackend) Name() string { return "ipfs" }

// LocationURI returns the backend URI.
func (b *IPFSBackend) LocationURI() string { return b.locationURI }
