package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jacsproject/jacs-go/interfaces"
)

// pgSchema linearizes each document's chain in the database itself: one row
// per version, at most one successor per version, at most one root per
// document. Violations surface as unique-constraint errors which Put maps to
// interfaces.ErrVersionConflict.
const pgSchema = `
CREATE TABLE IF NOT EXISTS jacs_documents (
	jacs_id          uuid  NOT NULL,
	version          uuid  NOT NULL,
	previous_version uuid,
	data             bytea NOT NULL,
	created_at       timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (jacs_id, version)
);
CREATE UNIQUE INDEX IF NOT EXISTS jacs_documents_successor
	ON jacs_documents (jacs_id, previous_version)
	WHERE previous_version IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS jacs_documents_root
	ON jacs_documents (jacs_id)
	WHERE previous_version IS NULL;
`

// PostgresBackend stores document versions in PostgreSQL. It is the
// reference linearizing backend: two concurrent updates claiming the same
// predecessor race on a unique index and exactly one wins.
type PostgresBackend struct {
	pool        *pgxpool.Pool
	log         *slog.Logger
	locationURI string
}

// NewPostgresBackend connects to the database at connString and ensures the
// schema exists.
func NewPostgresBackend(ctx context.Context, connString string, log *slog.Logger) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create document schema: %w", err)
	}

	return &PostgresBackend{
		pool:        pool,
		log:         log,
		locationURI: fmt.Sprintf("postgres://%s/%s", pool.Config().ConnConfig.Host, pool.Config().ConnConfig.Database),
	}, nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() { b.pool.Close() }

// Put stores one version. Unique-index violations (duplicate version,
// claimed predecessor, second root) map to interfaces.ErrVersionConflict.
func (b *PostgresBackend) Put(ctx context.Context, ref interfaces.VersionRef, data []byte) error {
	var previous any
	if ref.Previous != "" {
		previous = ref.Previous.String()
	}

	_, err := b.pool.Exec(ctx,
		`INSERT INTO jacs_documents (jacs_id, version, previous_version, data) VALUES ($1, $2, $3, $4)`,
		ref.ID.String(), ref.Version.String(), previous, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s: %s", interfaces.ErrVersionConflict, ref, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w: postgres insert: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored document version in postgres", slog.String("ref", ref.String()))
	return nil
}

// Get retrieves one stored version.
func (b *PostgresBackend) Get(ctx context.Context, id interfaces.DocumentID, version interfaces.VersionID) ([]byte, error) {
	var data []byte
	err := b.pool.QueryRow(ctx,
		`SELECT data FROM jacs_documents WHERE jacs_id = $1 AND version = $2`,
		id.String(), version.String()).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", interfaces.ErrDocumentNotFound, id, version)
		}
		return nil, fmt.Errorf("%w: postgres select: %v", interfaces.ErrBackendUnavailable, err)
	}
	return data, nil
}

// Versions lists all stored version ids of a document.
func (b *PostgresBackend) Versions(ctx context.Context, id interfaces.DocumentID) ([]interfaces.VersionID, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT version FROM jacs_documents WHERE jacs_id = $1`, id.String())
	if err != nil {
		return nil, fmt.Errorf("%w: postgres select: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer rows.Close()

	var versions []interfaces.VersionID
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions = append(versions, interfaces.VersionID(version))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: postgres select: %v", interfaces.ErrBackendUnavailable, err)
	}
	return versions, nil
}

// Available checks the database is reachable.
func (b *PostgresBackend) Available(ctx context.Context) bool {
	return b.pool.Ping(ctx) == nil
}

// Name returns the backend identifier.
func (b *PostgresBackend) Name() string { return "postgres" }

// LocationURI returns the backend URI.
func (b *PostgresBackend) LocationURI() string { return b.locationURI }
