package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// PutDocument replaces the whole entry for doc.Hash in one transaction.
// Chunk IDs are assigned by the database and written back into chunks.
func (s *SQLiteStorage) PutDocument(ctx context.Context, doc *DocumentRecord, chunks []*ChunkRecord, vectors []types.EmbeddingVector) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks vs %d vectors", types.ErrIndexInconsistency, len(chunks), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Whole-entry replace: drop any previous rows for this hash first.
	// Chunk and embedding rows follow via ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE hash = ?", doc.Hash); err != nil {
		return fmt.Errorf("failed to clear previous entry: %w", err)
	}

	now := time.Now()
	doc.ChunkCount = len(chunks)
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = now
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (hash, source, format, size_bytes, chunk_count, ingested_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.Hash, doc.Source, doc.Format, doc.SizeBytes, doc.ChunkCount, doc.IngestedAt, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for i, chunk := range chunks {
		chunk.DocHash = doc.Hash
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (doc_hash, chunk_index, text, page, byte_offset)
			VALUES (?, ?, ?, ?, ?)
		`, chunk.DocHash, chunk.ChunkIndex, chunk.Text, chunk.Page, chunk.Offset)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
		chunk.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read chunk id: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (chunk_id, vector, dimension)
			VALUES (?, ?, ?)
		`, chunk.ID, SerializeVector(vectors[i]), len(vectors[i]))
		if err != nil {
			return fmt.Errorf("failed to insert embedding for chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sources (source, doc_hash) VALUES (?, ?)
	`, doc.Source, doc.Hash)
	if err != nil {
		return fmt.Errorf("failed to record source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry: %w", err)
	}
	return nil
}

// GetDocument loads a complete entry with chunks ordered by chunk_index.
func (s *SQLiteStorage) GetDocument(ctx context.Context, hash string) (*DocumentRecord, []*ChunkRecord, []types.EmbeddingVector, error) {
	doc := &DocumentRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT hash, source, format, size_bytes, chunk_count, ingested_at, created_at, updated_at
		FROM documents WHERE hash = ?
	`, hash).Scan(&doc.Hash, &doc.Source, &doc.Format, &doc.SizeBytes, &doc.ChunkCount,
		&doc.IngestedAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load document: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.chunk_index, c.text, c.page, c.byte_offset, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON e.chunk_id = c.id
		WHERE c.doc_hash = ?
		ORDER BY c.chunk_index ASC
	`, hash)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*ChunkRecord
	var vectors []types.EmbeddingVector
	for rows.Next() {
		chunk := &ChunkRecord{DocHash: hash}
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.ChunkIndex, &chunk.Text, &chunk.Page, &chunk.Offset, &blob); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
		vectors = append(vectors, DeserializeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	return doc, chunks, vectors, nil
}

// DeleteDocument removes the entry for hash. Missing hashes are not an error.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE hash = ?", hash)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// ListDocuments returns metadata for every stored document.
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, source, format, size_bytes, chunk_count, ingested_at, created_at, updated_at
		FROM documents ORDER BY ingested_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*DocumentRecord
	for rows.Next() {
		doc := &DocumentRecord{}
		if err := rows.Scan(&doc.Hash, &doc.Source, &doc.Format, &doc.SizeBytes, &doc.ChunkCount,
			&doc.IngestedAt, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// PutSource records a source -> hash mapping, replacing any previous hash
// for the same source.
func (s *SQLiteStorage) PutSource(ctx context.Context, source, hash string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sources (source, doc_hash) VALUES (?, ?)", source, hash)
	if err != nil {
		return fmt.Errorf("failed to record source: %w", err)
	}
	return nil
}

// DeleteSource removes one source mapping. Missing sources are not an error.
func (s *SQLiteStorage) DeleteSource(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sources WHERE source = ?", source)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

// ListSources returns every recorded source -> hash mapping.
func (s *SQLiteStorage) ListSources(ctx context.Context) ([]SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT source, doc_hash FROM sources ORDER BY source ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []SourceRecord
	for rows.Next() {
		var rec SourceRecord
		if err := rows.Scan(&rec.Source, &rec.DocHash); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ChunkIndex returns the live chunk id -> hash mapping ordered by chunk id.
func (s *SQLiteStorage) ChunkIndex(ctx context.Context) ([]ChunkIndexEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, doc_hash FROM chunks ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []ChunkIndexEntry
	for rows.Next() {
		var e ChunkIndexEntry
		if err := rows.Scan(&e.ChunkID, &e.DocHash); err != nil {
			return nil, fmt.Errorf("failed to scan chunk index entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
