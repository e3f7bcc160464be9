package types

// Provenance tags where a retrieval result came from.
type Provenance string

const (
	ProvenanceLocal Provenance = "local"
	ProvenanceWeb   Provenance = "web"
)

// RetrievalResult is a single piece of evidence returned by the retrieval
// orchestrator. Local results reference a chunk in the vector index; web
// results carry the normalized URL instead.
type RetrievalResult struct {
	ChunkID int64 // 0 for web results
	Rank    int   // 1-based position in the final ordering

	// Score is the similarity score for single-list modes and the fused RRF
	// score when multiple ranked lists were combined.
	Score float64

	Provenance Provenance
	Text       string
	Source     string // document source identifier, or web URL
	Title      string // web result title, empty for local results
	DocHash    string // owning document, empty for web results
	Page       int
}

// Validate checks result invariants before the result is handed to callers.
func (r *RetrievalResult) Validate() error {
	if r.Rank < 1 {
		return ErrInvalidRank
	}
	switch r.Provenance {
	case ProvenanceLocal:
		if r.ChunkID == 0 {
			return ErrInvalidChunkID
		}
	case ProvenanceWeb:
		if r.Source == "" {
			return ErrMissingSource
		}
	default:
		return ErrInvalidProvenance
	}
	return nil
}
