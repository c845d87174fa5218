package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jacsproject/jacs-go/interfaces"
)

// MultiBackend aggregates several backends for redundancy: writes go to
// every available backend, reads come from the first that has the content.
type MultiBackend struct {
	backends []interfaces.DocumentStorage
	log      *slog.Logger
}

// NewMultiBackend creates an aggregated backend.
func NewMultiBackend(backends []interfaces.DocumentStorage, log *slog.Logger) (*MultiBackend, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("multi backend requires at least one backend")
	}
	return &MultiBackend{backends: backends, log: log}, nil
}

// Put stores to every available backend. A version conflict reported by any
// backend aborts the write and propagates: a conflict anywhere means the
// chain already went a different way. Other per-backend failures are
// tolerated as long as at least one backend accepted the write.
func (m *MultiBackend) Put(ctx context.Context, ref interfaces.VersionRef, data []byte) error {
	var errs []error
	stored := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable for write",
				slog.String("backend_name", backend.Name()),
				slog.String("ref", ref.String()))
			continue
		}

		err := backend.Put(ctx, ref, data)
		if err == nil {
			stored++
			continue
		}
		if errors.Is(err, interfaces.ErrVersionConflict) {
			return err
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
	}

	if stored == 0 {
		return fmt.Errorf("%w: no backend accepted %s: %v", interfaces.ErrBackendUnavailable, ref, errs)
	}
	if len(errs) > 0 {
		m.log.Warn("Some backends failed to store version",
			slog.String("ref", ref.String()),
			slog.Int("stored", stored),
			slog.Int("failed", len(errs)))
	}
	return nil
}

// Get fetches from the first backend that has the version.
func (m *MultiBackend) Get(ctx context.Context, id interfaces.DocumentID, version interfaces.VersionID) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}
		data, err := backend.Get(ctx, id, version)
		if err == nil {
			m.log.Debug("Fetched document version",
				slog.String("backend_name", backend.Name()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
	}

	for _, err := range errs {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", interfaces.ErrDocumentNotFound, id, version)
		}
	}
	return nil, fmt.Errorf("%w: all backends failed for %s/%s: %v", interfaces.ErrBackendUnavailable, id, version, errs)
}

// Versions returns the union of version ids across backends.
func (m *MultiBackend) Versions(ctx context.Context, id interfaces.DocumentID) ([]interfaces.VersionID, error) {
	seen := make(map[interfaces.VersionID]struct{})
	var versions []interfaces.VersionID
	queried := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}
		backendVersions, err := backend.Versions(ctx, id)
		if err != nil {
			m.log.Debug("Backend failed to list versions",
				slog.String("backend_name", backend.Name()),
				slog.Any("err", err))
			continue
		}
		queried++
		for _, version := range backendVersions {
			if _, dup := seen[version]; !dup {
				seen[version] = struct{}{}
				versions = append(versions, version)
			}
		}
	}

	if queried == 0 {
		return nil, fmt.Errorf("%w: no backend could list versions of %s", interfaces.ErrBackendUnavailable, id)
	}
	return versions, nil
}

// Available reports true when any backend is available.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the backend identifier.
func (m *MultiBackend) Name() string { return "multi" }

// LocationURI returns the aggregated backend URIs.
func (m *MultiBackend) LocationURI() string {
	uris := make([]string, len(m.backends))
	for i, backend := range m.backends {
		uris[i] = backend.LocationURI()
	}
	return strings.Join(uris, ",")
}
