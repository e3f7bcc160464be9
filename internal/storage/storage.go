package storage

import (
	"context"
	"errors"
	"time"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// Storage persists the hash-addressed document store: one document record per
// content hash, an ordered chunk array, and a parallel embedding array.
type Storage interface {
	// PutDocument replaces the full entry for doc.Hash in a single
	// transaction and assigns chunk IDs. len(vectors) must equal len(chunks);
	// there are no partial updates.
	PutDocument(ctx context.Context, doc *DocumentRecord, chunks []*ChunkRecord, vectors []types.EmbeddingVector) error

	// GetDocument loads a complete entry. Returns ErrNotFound on a miss.
	GetDocument(ctx context.Context, hash string) (*DocumentRecord, []*ChunkRecord, []types.EmbeddingVector, error)

	// DeleteDocument removes the entry and its chunks and embeddings.
	DeleteDocument(ctx context.Context, hash string) error

	// ListDocuments returns metadata for every stored document.
	ListDocuments(ctx context.Context) ([]*DocumentRecord, error)

	// PutSource records a source identifier for a stored document. Several
	// sources may map to the same hash when their bytes are identical.
	PutSource(ctx context.Context, source, hash string) error

	// DeleteSource removes one source identifier. The document itself stays
	// until its last source is gone and the caller deletes it.
	DeleteSource(ctx context.Context, source string) error

	// ListSources returns every recorded source -> hash mapping, ordered by
	// source.
	ListSources(ctx context.Context) ([]SourceRecord, error)

	// ChunkIndex returns the live chunk id -> document hash mapping, ordered
	// by chunk id. Used to rebuild the in-memory index on startup.
	ChunkIndex(ctx context.Context) ([]ChunkIndexEntry, error)

	// Close releases the underlying database.
	Close() error
}

// DocumentRecord is the persisted metadata row for one content hash.
type DocumentRecord struct {
	Hash       string
	Source     string
	Format     string
	SizeBytes  int64
	ChunkCount int
	IngestedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChunkRecord is one persisted chunk. ID is assigned by the database and is
// the chunk's identity everywhere else in the system.
type ChunkRecord struct {
	ID         int64
	DocHash    string
	ChunkIndex int
	Text       string
	Page       int
	Offset     int
}

// ChunkIndexEntry maps a live chunk id to its owning document hash.
type ChunkIndexEntry struct {
	ChunkID int64
	DocHash string
}

// SourceRecord maps a source identifier to its document hash.
type SourceRecord struct {
	Source  string
	DocHash string
}

// Metadata converts a record to the shared metadata type.
func (d *DocumentRecord) Metadata() types.DocumentMetadata {
	return types.DocumentMetadata{
		Hash:       d.Hash,
		Source:     d.Source,
		Format:     d.Format,
		SizeBytes:  d.SizeBytes,
		ChunkCount: d.ChunkCount,
		IngestedAt: d.IngestedAt,
	}
}

// Chunk converts a record to the shared chunk type.
func (c *ChunkRecord) Chunk() types.DocumentChunk {
	return types.DocumentChunk{
		Index:   c.ChunkIndex,
		Text:    c.Text,
		Page:    c.Page,
		Offset:  c.Offset,
		DocHash: c.DocHash,
	}
}
