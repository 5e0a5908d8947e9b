package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/metrics"
	"github.com/bidforge/backend/pkg/logger"
)

const contextBanner = "Relevant knowledge from your organization's documents:"

// Embedder is the query-vector source for retrieval. It never fails; a
// degraded deployment gets fallback vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) [][]float32
}

// Context is the outcome of multi-query retrieval. An empty Text means "no
// knowledge available" — a modeled result, not an error.
type Context struct {
	Text   string
	Chunks []SearchResult
}

func (c Context) Empty() bool {
	return c.Text == ""
}

// Aggregator fans retrieval queries out to the store and folds the results
// into a single bounded context block.
type Aggregator struct {
	store    Store
	embedder Embedder
}

func NewAggregator(store Store, embedder Embedder) *Aggregator {
	return &Aggregator{store: store, embedder: embedder}
}

// Retrieve embeds each query, searches the org's chunks, dedupes by chunk
// identity, and keeps the global topK by similarity. The first query to
// return a chunk supplies its text and metadata; a later query may refresh
// the similarity score. Failed individual searches degrade the result
// rather than failing it; err is non-nil only when every query errored.
func (a *Aggregator) Retrieve(ctx context.Context, orgID string, queries []string, topK int) (Context, error) {
	if topK <= 0 {
		topK = 5
	}

	queries = nonEmpty(queries)
	if len(queries) == 0 {
		return Context{}, nil
	}

	vectors := a.embedder.Embed(ctx, queries)

	merged := make(map[string]SearchResult)
	var order []string
	var lastErr error
	failures := 0

	for i, vector := range vectors {
		results, err := a.store.Search(ctx, orgID, vector, topK)
		if err != nil {
			logger.Warn("Knowledge search failed for query",
				zap.String("org_id", orgID),
				zap.Int("query_index", i),
				zap.Error(err),
			)
			lastErr = err
			failures++
			continue
		}
		metrics.SearchResultsCount.Observe(float64(len(results)))

		for _, r := range results {
			if existing, seen := merged[r.ChunkID]; seen {
				existing.Similarity = r.Similarity
				merged[r.ChunkID] = existing
				continue
			}
			merged[r.ChunkID] = r
			order = append(order, r.ChunkID)
		}
	}

	if failures == len(vectors) && lastErr != nil {
		return Context{}, fmt.Errorf("knowledge retrieval failed: %w", lastErr)
	}
	if len(merged) == 0 {
		return Context{}, nil
	}

	ranked := make([]SearchResult, 0, len(merged))
	for _, id := range order {
		ranked = append(ranked, merged[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	var sb strings.Builder
	sb.WriteString(contextBanner)
	for _, chunk := range ranked {
		sb.WriteString(fmt.Sprintf("\n[From: %s]\n%s", chunk.DocTitle, chunk.ChunkText))
	}

	return Context{Text: sb.String(), Chunks: ranked}, nil
}

func nonEmpty(queries []string) []string {
	out := queries[:0:0]
	for _, q := range queries {
		if strings.TrimSpace(q) != "" {
			out = append(out, q)
		}
	}
	return out
}
