package knowledge

import "context"

// ChunkVector is one chunk of a document together with its embedding,
// ready for the vector store.
type ChunkVector struct {
	ChunkID    string
	DocumentID string
	OrgID      string
	ChunkIndex int
	Text       string
	DocTitle   string
	Vector     []float32
}

// SearchResult is an ephemeral per-query match, produced by Store.Search
// and merged by the aggregator.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	ChunkText  string  `json:"chunk_text"`
	DocumentID string  `json:"document_id"`
	DocTitle   string  `json:"doc_title"`
	Similarity float64 `json:"similarity"`
}

// Store persists chunk vectors and answers nearest-neighbor queries.
// Search is scoped strictly to orgID: returning another tenant's chunks is
// a correctness violation, not a ranking defect. Results are cosine
// similarity, descending, at most topK.
type Store interface {
	UpsertChunks(ctx context.Context, chunks []ChunkVector) error
	Search(ctx context.Context, orgID string, vector []float32, topK int) ([]SearchResult, error)
	DeleteDocument(ctx context.Context, orgID, documentID string) error
}
