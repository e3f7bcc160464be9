package storage

import (
	"encoding/binary"
	"math"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

// SerializeVector converts a float32 vector to a byte blob (little-endian)
func SerializeVector(vector types.EmbeddingVector) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// DeserializeVector converts a byte blob back to a float32 vector
func DeserializeVector(blob []byte) types.EmbeddingVector {
	vector := make(types.EmbeddingVector, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
