package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/metrics"
	"github.com/bidforge/backend/pkg/logger"
)

// Dim is the vector dimension shared by the provider path and the fallback
// path. Stored vectors and query vectors must agree on it.
const Dim = 1536

// Provider generates embeddings through an external API.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache holds previously computed vectors keyed by content hash. All methods
// are best-effort; errors are ignored by the embedder.
type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

// Embedder converts texts to fixed-dimension vectors. The provider is tried
// first; any provider failure degrades to the deterministic hashed
// bag-of-words fallback so indexing and search keep working offline.
type Embedder struct {
	provider Provider
	cache    Cache
	cacheTTL time.Duration
}

func New(provider Provider, cache Cache) *Embedder {
	return &Embedder{
		provider: provider,
		cache:    cache,
		cacheTTL: 24 * time.Hour,
	}
}

// Embed returns one vector per input text, in input order. It never fails:
// provider errors fall back to FallbackEmbeddings.
func (e *Embedder) Embed(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}

	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if cached, ok := e.cachedVector(ctx, text); ok {
			vectors[i] = cached
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors
	}

	fresh := e.embedUncached(ctx, missing)
	for j, vec := range fresh {
		vectors[missingIdx[j]] = vec
		e.storeVector(ctx, missing[j], vec)
	}

	return vectors
}

func (e *Embedder) embedUncached(ctx context.Context, texts []string) [][]float32 {
	if e.provider != nil {
		vectors, err := e.provider.EmbedBatch(ctx, texts)
		if err == nil && len(vectors) == len(texts) {
			return vectors
		}
		if err != nil {
			logger.Warn("Embedding provider failed, using fallback vectors",
				zap.Error(err),
				zap.Int("texts", len(texts)),
			)
		} else {
			logger.Warn("Embedding provider returned wrong count, using fallback vectors",
				zap.Int("got", len(vectors)),
				zap.Int("want", len(texts)),
			)
		}
	}
	metrics.EmbeddingFallbacks.Inc()
	return FallbackEmbeddings(texts)
}

func (e *Embedder) cachedVector(ctx context.Context, text string) ([]float32, bool) {
	if e.cache == nil {
		return nil, false
	}
	vec, ok, err := e.cache.GetEmbedding(ctx, contentKey(text))
	if err != nil || !ok || len(vec) != Dim {
		return nil, false
	}
	return vec, true
}

func (e *Embedder) storeVector(ctx context.Context, text string, vec []float32) {
	if e.cache == nil {
		return
	}
	_ = e.cache.SetEmbedding(ctx, contentKey(text), vec, e.cacheTTL)
}

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
