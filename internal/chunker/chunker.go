package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

const (
	// DefaultTargetSize is the target chunk length in characters.
	DefaultTargetSize = 800

	// DefaultOverlap is the number of characters carried over between
	// consecutive chunks of the same segment.
	DefaultOverlap = 120

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Config controls chunk sizing.
type Config struct {
	TargetSize int // characters per chunk (default 800)
	Overlap    int // characters of overlap between adjacent chunks (default 120)
}

// Chunker splits extracted segments into ordered document chunks.
type Chunker struct {
	targetSize int
	overlap    int
}

// New creates a Chunker with default sizing.
func New() *Chunker {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a Chunker with explicit sizing. Zero or negative
// values fall back to defaults; overlap is clamped below the target size.
func NewWithConfig(cfg Config) *Chunker {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = DefaultTargetSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = DefaultOverlap
	}
	if cfg.Overlap >= cfg.TargetSize {
		cfg.Overlap = cfg.TargetSize / 4
	}
	return &Chunker{targetSize: cfg.TargetSize, overlap: cfg.Overlap}
}

// Split turns ordered segments into ordered chunks for the document
// identified by docHash. Chunk indexes are continuous across segments and
// never change after creation. Empty segments are skipped.
func (c *Chunker) Split(segments []types.Segment, docHash string) []types.DocumentChunk {
	chunks := make([]types.DocumentChunk, 0, len(segments))
	index := 0

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		for _, piece := range c.splitText(text) {
			chunks = append(chunks, types.DocumentChunk{
				Index:   index,
				Text:    piece.text,
				Page:    seg.Page,
				Offset:  seg.Offset + piece.offset,
				DocHash: docHash,
			})
			index++
		}
	}

	return chunks
}

// EstimateTokens returns the token estimate for a chunk's text.
func EstimateTokens(text string) int {
	return len(text) / TokensPerChar
}

type piece struct {
	text   string
	offset int // byte offset of the piece within the segment text
}

// splitText cuts text into target-sized pieces, preferring whitespace
// boundaries and carrying overlap characters into the next piece.
func (c *Chunker) splitText(text string) []piece {
	runes := []rune(text)
	if len(runes) <= c.targetSize {
		return []piece{{text: text}}
	}

	// Rune index -> byte offset, so piece offsets stay in byte units for
	// non-ASCII text.
	byteAt := make([]int, len(runes)+1)
	for i, r := range runes {
		byteAt[i+1] = byteAt[i] + utf8.RuneLen(r)
	}

	var pieces []piece
	start := 0
	for start < len(runes) {
		end := start + c.targetSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakAt(runes, start, end)
		}

		pieces = append(pieces, piece{
			text:   strings.TrimSpace(string(runes[start:end])),
			offset: byteAt[start],
		})

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return pieces
}

// breakAt finds a whitespace boundary at or before end, scanning back no
// further than half the piece.
func breakAt(runes []rune, start, end int) int {
	limit := start + (end-start)/2
	for i := end; i > limit; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
