package semantic

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalEmbedder is a deterministic, dependency-free Embedder: it hashes
// overlapping word shingles into a fixed-dimension bag-of-features vector,
// then L2-normalizes it so cosine distance behaves sensibly. No SDK in the
// corpus offers a text-embedding endpoint (anthropic-sdk-go's Messages API
// is chat/completion only, per SPEC_FULL.md §2's own note that the SDK is
// wired for self-document prose, not embeddings), so this is the only
// concrete Embedder this module ships; config.Search.EmbeddingModel names
// the strategy purely for forward compatibility with a future provider.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder builds a LocalEmbedder producing vectors of dim floats.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &LocalEmbedder{dim: dim}
}

func (e *LocalEmbedder) Dimensions() int { return e.dim }

// Embed hashes each whitespace token (and each adjacent bigram) into a
// bucket of the output vector, accumulating a signed count per bucket so
// semantically similar text (shared vocabulary) lands close in cosine
// space, then normalizes to unit length.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float64, e.dim)
	tokens := strings.Fields(strings.ToLower(text))
	for i, tok := range tokens {
		e.accumulate(vec, tok)
		if i > 0 {
			e.accumulate(vec, tokens[i-1]+"_"+tok)
		}
	}
	out := make([]float32, e.dim)
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *LocalEmbedder) accumulate(vec []float64, token string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum64()
	bucket := sum % uint64(len(vec))
	if sum&1 == 0 {
		vec[bucket]++
	} else {
		vec[bucket]--
	}
}
