package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("same input"))
	b := HashBytes([]byte("same input"))
	c := HashBytes([]byte("different input"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	// The empty document still has a well-defined hash.
	assert.Len(t, HashBytes(nil), 64)
}

func TestDocumentChunk_Validate(t *testing.T) {
	valid := DocumentChunk{Index: 0, Text: "body", DocHash: "h"}
	assert.NoError(t, valid.Validate())

	noText := DocumentChunk{Index: 0, DocHash: "h"}
	assert.Error(t, noText.Validate())

	negative := DocumentChunk{Index: -1, Text: "body", DocHash: "h"}
	assert.Error(t, negative.Validate())

	noHash := DocumentChunk{Index: 0, Text: "body"}
	assert.Error(t, noHash.Validate())
}

func TestRetrievalResult_Validate(t *testing.T) {
	local := RetrievalResult{ChunkID: 3, Rank: 1, Provenance: ProvenanceLocal, Text: "t", Source: "a.txt"}
	assert.NoError(t, local.Validate())

	web := RetrievalResult{Rank: 2, Provenance: ProvenanceWeb, Text: "t", Source: "https://example.com"}
	assert.NoError(t, web.Validate())

	unranked := RetrievalResult{ChunkID: 3, Provenance: ProvenanceLocal}
	assert.ErrorIs(t, unranked.Validate(), ErrInvalidRank)

	localWithoutChunk := RetrievalResult{Rank: 1, Provenance: ProvenanceLocal}
	assert.ErrorIs(t, localWithoutChunk.Validate(), ErrInvalidChunkID)

	webWithoutURL := RetrievalResult{Rank: 1, Provenance: ProvenanceWeb}
	assert.ErrorIs(t, webWithoutURL.Validate(), ErrMissingSource)

	untagged := RetrievalResult{Rank: 1}
	assert.ErrorIs(t, untagged.Validate(), ErrInvalidProvenance)
}
