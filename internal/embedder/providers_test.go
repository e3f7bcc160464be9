package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

func cosine(a, b types.EmbeddingVector) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalProvider_Deterministic(t *testing.T) {
	p := NewLocalProvider(nil)
	ctx := context.Background()

	first, err := p.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	second, err := p.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, LocalDimension)
}

func TestLocalProvider_Normalized(t *testing.T) {
	p := NewLocalProvider(nil)

	vec, err := p.Embed(context.Background(), "normalize this sentence please")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestLocalProvider_SharedVocabularyScoresHigher(t *testing.T) {
	p := NewLocalProvider(nil)
	ctx := context.Background()

	base, err := p.Embed(ctx, "database index performance tuning")
	require.NoError(t, err)
	similar, err := p.Embed(ctx, "tuning database index performance")
	require.NoError(t, err)
	unrelated, err := p.Embed(ctx, "gardening roses in spring weather")
	require.NoError(t, err)

	assert.Greater(t, cosine(base, similar), cosine(base, unrelated))
	assert.InDelta(t, 1.0, cosine(base, similar), 1e-5)
}

func TestLocalProvider_SignIndependentOfBucketParity(t *testing.T) {
	p := NewLocalProvider(nil)
	ctx := context.Background()

	// Single-word embeddings have exactly one nonzero component. If the sign
	// were a function of the bucket, negatives could only ever land on one
	// parity of bucket index.
	var negEven, posOdd bool
	for i := 0; i < 400; i++ {
		vec, err := p.Embed(ctx, fmt.Sprintf("word%d", i))
		require.NoError(t, err)
		for idx, v := range vec {
			if v < 0 && idx%2 == 0 {
				negEven = true
			}
			if v > 0 && idx%2 == 1 {
				posOdd = true
			}
		}
	}
	assert.True(t, negEven)
	assert.True(t, posOdd)
}

func TestLocalProvider_EmptyText(t *testing.T) {
	p := NewLocalProvider(nil)
	_, err := p.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestLocalProvider_BatchValidation(t *testing.T) {
	p := NewLocalProvider(nil)
	ctx := context.Background()

	_, err := p.EmbedBatch(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = p.EmbedBatch(ctx, []string{"ok", ""})
	assert.ErrorIs(t, err, ErrEmptyText)

	vectors, err := p.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
}

func TestLocalProvider_UsesCache(t *testing.T) {
	cache := NewCache(16)
	p := NewLocalProvider(cache)

	_, err := p.Embed(context.Background(), "cache me")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Size())

	vec, ok := cache.Get(ComputeHash("cache me"))
	require.True(t, ok)
	assert.Len(t, vec, LocalDimension)
}

func TestCache_GetReturnsCopy(t *testing.T) {
	cache := NewCache(4)
	cache.Set("k", types.EmbeddingVector{1, 2, 3})

	vec, ok := cache.Get("k")
	require.True(t, ok)
	vec[0] = 99

	again, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, float32(1), again[0])
}

func TestHTTPProvider_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		// Respond out of order; the client must reassemble by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, item{Embedding: []float32{float32(i), 1}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := newHTTPProvider("test", server.URL, "test-key", "test-model", 2, nil)
	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, types.EmbeddingVector{0, 1}, vectors[0])
	assert.Equal(t, types.EmbeddingVector{2, 1}, vectors[2])
}

func TestHTTPProvider_BatchTooLarge(t *testing.T) {
	p := newHTTPProvider("test", "http://invalid", "k", "m", 2, nil)

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "text"
	}
	_, err := p.EmbedBatch(context.Background(), texts)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestHTTPProvider_ErrorWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	p := newHTTPProvider("test", server.URL, "k", "m", 2, nil)
	_, err := p.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
}

func TestNewFromEnv_DefaultsToLocal(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvJinaAPIKey, "")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
	assert.Equal(t, LocalDimension, emb.Dimension())
}

func TestNewFromEnv_ExplicitProvider(t *testing.T) {
	t.Setenv(EnvProvider, ProviderLocal)
	t.Setenv(EnvOpenAIAPIKey, "sk-something")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
}

func TestComputeHash_Stable(t *testing.T) {
	assert.Equal(t, ComputeHash("abc"), ComputeHash("abc"))
	assert.NotEqual(t, ComputeHash("abc"), ComputeHash("abd"))
	assert.Len(t, ComputeHash("abc"), 64)
}
