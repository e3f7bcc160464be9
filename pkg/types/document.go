package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Segment is an ordered piece of extracted text as returned by a document
// processor, before chunking.
type Segment struct {
	Text   string
	Page   int // 1-based source page, 0 when the format has no pages
	Offset int // byte offset within the extracted text
}

// DocumentChunk is an ordered text segment of a document. Index is the
// position of the chunk within its document, starting at 0.
type DocumentChunk struct {
	Index   int
	Text    string
	Page    int // 1-based source page, 0 when the format has no pages
	Offset  int // byte offset of the segment within the extracted text
	DocHash string
}

// DocumentMetadata describes an ingested document.
type DocumentMetadata struct {
	Hash       string
	Source     string // original identifier: file path, URL, or a caller-chosen name
	Format     string
	SizeBytes  int64
	ChunkCount int
	IngestedAt time.Time
}

// EmbeddingVector is a fixed-dimension vector. The dimension is constant for
// the lifetime of one vector index instance.
type EmbeddingVector []float32

// HashBytes computes the content hash used as a document's cache key.
func HashBytes(raw []byte) string {
	h := sha256.Sum256(raw)
	return hex.EncodeToString(h[:])
}

// Validate checks basic chunk integrity.
func (c *DocumentChunk) Validate() error {
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}
	if c.Index < 0 {
		return errors.New("chunk index must be non-negative")
	}
	if c.DocHash == "" {
		return errors.New("chunk must reference its document hash")
	}
	return nil
}
