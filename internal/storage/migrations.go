package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion tracks the database schema version
const CurrentSchemaVersion = 2

// Migration represents a database schema migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: 2,
		Up:      migrationV2Up,
		Down:    migrationV2Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Documents table: one row per content hash
CREATE TABLE IF NOT EXISTS documents (
    hash TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    format TEXT,
    size_bytes INTEGER DEFAULT 0,
    chunk_count INTEGER DEFAULT 0,
    ingested_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);

-- Chunks table: ordered text segments of a document
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    doc_hash TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    text TEXT NOT NULL,
    page INTEGER DEFAULT 0,
    byte_offset INTEGER DEFAULT 0,
    FOREIGN KEY (doc_hash) REFERENCES documents(hash) ON DELETE CASCADE,
    UNIQUE(doc_hash, chunk_index)
);

-- Live chunk id -> hash index, used for startup reconciliation
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_hash);

-- Embeddings table: one vector per chunk, parallel to the chunk array
CREATE TABLE IF NOT EXISTS embeddings (
    chunk_id INTEGER PRIMARY KEY,
    vector BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS embeddings;
DROP TABLE IF EXISTS chunks;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS schema_version;
`

const migrationV2Up = `
-- Source aliases: every ingested source identifier, including names whose
-- bytes hash to an already stored document
CREATE TABLE IF NOT EXISTS sources (
    source TEXT PRIMARY KEY,
    doc_hash TEXT NOT NULL,
    FOREIGN KEY (doc_hash) REFERENCES documents(hash) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sources_hash ON sources(doc_hash);

INSERT OR IGNORE INTO sources (source, doc_hash) SELECT source, hash FROM documents;
`

const migrationV2Down = `
DROP TABLE IF EXISTS sources;
`

// ApplyMigrations applies any pending migrations in order.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// schemaVersion returns the highest applied migration version, 0 when the
// database is fresh.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version sql.NullInt64
	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
