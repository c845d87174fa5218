package interfaces

import (
	"context"
	"fmt"
	"net/url"
)

// VersionRef addresses one stored revision of a document. Previous is empty
// for the first version; storage backends that support optimistic locking use
// it to reject two updates claiming the same predecessor.
type VersionRef struct {
	ID       DocumentID
	Version  VersionID
	Previous VersionID
}

// String returns "docID/versionID" for logging.
func (r VersionRef) String() string {
	return fmt.Sprintf("%s/%s", r.ID, r.Version)
}

// DocumentStorage provides versioned persistence of serialized documents.
// Stored bytes must round-trip unaltered: the core's digests are computed
// over canonical bytes, so backends only need byte fidelity, not field-order
// preservation.
type DocumentStorage interface {
	// Put stores the serialized bytes of one document version.
	// Backends with linearization support return ErrVersionConflict when
	// another version already claims ref.Previous.
	Put(ctx context.Context, ref VersionRef, data []byte) error

	// Get retrieves one version. Returns ErrDocumentNotFound if absent.
	Get(ctx context.Context, id DocumentID, version VersionID) ([]byte, error)

	// Versions lists all stored version ids of a document, unordered.
	Versions(ctx context.Context, id DocumentID) ([]VersionID, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// StorageLocation is a parsed storage backend URI.
type StorageLocation struct {
	Raw    string
	Scheme string
	Host   string
	Path   string
	Query  url.Values
	Auth   string
}

// NewStorageLocation parses and validates a storage backend URI.
// Supported schemes: file, mem, s3, ipfs, postgres.
func NewStorageLocation(uri string) (StorageLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageLocation{}, fmt.Errorf("invalid URI format: %w", err)
	}

	switch parsed.Scheme {
	case "file", "mem", "s3", "ipfs", "postgres":
	default:
		return StorageLocation{}, fmt.Errorf("unsupported storage scheme: %s", parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StorageLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI.
func (loc StorageLocation) String() string { return loc.Raw }

// GetParam returns a query parameter value.
func (loc StorageLocation) GetParam(name string) string { return loc.Query.Get(name) }

// GetParamBool returns a boolean query parameter value.
func (loc StorageLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// StorageFactory creates document storage backends.
type StorageFactory interface {
	// StorageFor creates a backend from a location URI.
	StorageFor(location StorageLocation) (DocumentStorage, error)

	// CreateMultiStorage creates an aggregated backend that stores to all
	// locations and fetches from the first that has the content.
	CreateMultiStorage(locations []StorageLocation) (DocumentStorage, error)
}
