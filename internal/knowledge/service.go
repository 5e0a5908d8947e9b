package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/extract"
	"github.com/bidforge/backend/internal/ingestion"
	"github.com/bidforge/backend/internal/metrics"
	"github.com/bidforge/backend/internal/storage/blob"
	"github.com/bidforge/backend/internal/storage/models"
	"github.com/bidforge/backend/pkg/logger"
)

// DocumentStore is the relational side of the knowledge base, implemented
// by the sqlite client.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *models.KnowledgeDocument) error
	MarkIndexed(ctx context.Context, documentID string) error
	InsertChunks(ctx context.Context, chunks []models.KnowledgeChunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	GetDocument(ctx context.Context, orgID, documentID string) (*models.KnowledgeDocument, error)
	ListDocuments(ctx context.Context, orgID string) ([]models.KnowledgeDocument, error)
	DeleteDocument(ctx context.Context, orgID, documentID string) error
}

// Service owns the knowledge document lifecycle: upload, extract, chunk,
// embed, index, search, delete.
type Service struct {
	docs       DocumentStore
	vectors    Store
	blobs      blob.Store
	embedder   Embedder
	aggregator *Aggregator

	chunkSize    int
	chunkOverlap int
}

func NewService(docs DocumentStore, vectors Store, blobs blob.Store, embedder Embedder) *Service {
	return &Service{
		docs:         docs,
		vectors:      vectors,
		blobs:        blobs,
		embedder:     embedder,
		aggregator:   NewAggregator(vectors, embedder),
		chunkSize:    ingestion.DefaultChunkSize,
		chunkOverlap: ingestion.DefaultChunkOverlap,
	}
}

type UploadInput struct {
	OrgID      string
	UploadedBy string
	Title      string
	DocType    string
	Filename   string
	Data       []byte
}

// UploadAndIndex stores the raw file, extracts its text, and indexes it.
// Indexing is all-or-nothing: is_indexed flips true only after every chunk
// row and vector is persisted. On a partial failure the chunk writes are
// rolled back and the document stays re-indexable with is_indexed=false.
func (s *Service) UploadAndIndex(ctx context.Context, in UploadInput) (*models.KnowledgeDocument, error) {
	text, err := extract.Text(in.Filename, in.Data)
	if err != nil {
		return nil, err
	}

	key := blob.GenerateKey(in.OrgID, in.Filename)
	if _, err := s.blobs.Put(in.Data, key); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	now := time.Now()
	doc := &models.KnowledgeDocument{
		ID:               uuid.New().String(),
		OrgID:            in.OrgID,
		UploadedBy:       in.UploadedBy,
		Title:            in.Title,
		DocType:          in.DocType,
		OriginalFilename: in.Filename,
		BlobKey:          key,
		ExtractedText:    text,
		IsIndexed:        false,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.docs.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	if err := s.index(ctx, doc); err != nil {
		logger.Error("Document indexing failed, document left unindexed",
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
		return nil, err
	}

	doc.IsIndexed = true
	return doc, nil
}

// Reindex re-runs chunking and embedding for a document whose earlier
// indexing attempt failed.
func (s *Service) Reindex(ctx context.Context, orgID, documentID string) (*models.KnowledgeDocument, error) {
	doc, err := s.docs.GetDocument(ctx, orgID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.IsIndexed {
		return doc, nil
	}
	if err := s.index(ctx, doc); err != nil {
		return nil, err
	}
	doc.IsIndexed = true
	return doc, nil
}

func (s *Service) index(ctx context.Context, doc *models.KnowledgeDocument) error {
	texts := ingestion.ChunkText(doc.ExtractedText, s.chunkSize, s.chunkOverlap)
	if len(texts) == 0 {
		// Nothing to embed; an empty document is trivially indexed.
		if err := s.docs.MarkIndexed(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to mark document indexed: %w", err)
		}
		return nil
	}

	vectors := s.embedder.Embed(ctx, texts)

	chunkRows := make([]models.KnowledgeChunk, len(texts))
	chunkVectors := make([]ChunkVector, len(texts))
	now := time.Now()
	for i, text := range texts {
		chunkID := uuid.New().String()
		chunkRows[i] = models.KnowledgeChunk{
			ID:         chunkID,
			DocumentID: doc.ID,
			OrgID:      doc.OrgID,
			ChunkIndex: i,
			Text:       text,
			CreatedAt:  now,
		}
		chunkVectors[i] = ChunkVector{
			ChunkID:    chunkID,
			DocumentID: doc.ID,
			OrgID:      doc.OrgID,
			ChunkIndex: i,
			Text:       text,
			DocTitle:   doc.Title,
			Vector:     vectors[i],
		}
	}

	if err := s.docs.InsertChunks(ctx, chunkRows); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := s.vectors.UpsertChunks(ctx, chunkVectors); err != nil {
		// Roll back the chunk rows so a retry starts clean and the
		// document never reads as half indexed.
		if cleanupErr := s.docs.DeleteChunksByDocument(ctx, doc.ID); cleanupErr != nil {
			logger.Error("Failed to roll back chunk rows after vector failure",
				zap.String("document_id", doc.ID),
				zap.Error(cleanupErr),
			)
		}
		return fmt.Errorf("failed to store vectors: %w", err)
	}
	if err := s.docs.MarkIndexed(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to mark document indexed: %w", err)
	}

	metrics.DocumentsIndexed.Inc()
	metrics.ChunksIndexed.Add(float64(len(chunkRows)))
	logger.Info("Document indexed",
		zap.String("document_id", doc.ID),
		zap.String("org_id", doc.OrgID),
		zap.Int("chunks", len(chunkRows)),
	)
	return nil
}

// Search embeds one query and returns the org's nearest chunks.
func (s *Service) Search(ctx context.Context, orgID, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	vectors := s.embedder.Embed(ctx, []string{query})
	results, err := s.vectors.Search(ctx, orgID, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	metrics.SearchResultsCount.Observe(float64(len(results)))
	return results, nil
}

// Retrieve runs multi-query retrieval through the aggregator.
func (s *Service) Retrieve(ctx context.Context, orgID string, queries []string, topK int) (Context, error) {
	return s.aggregator.Retrieve(ctx, orgID, queries, topK)
}

func (s *Service) ListDocuments(ctx context.Context, orgID string) ([]models.KnowledgeDocument, error) {
	return s.docs.ListDocuments(ctx, orgID)
}

func (s *Service) GetDocument(ctx context.Context, orgID, documentID string) (*models.KnowledgeDocument, error) {
	return s.docs.GetDocument(ctx, orgID, documentID)
}

// Delete removes the document's blob, vectors, and rows. Chunk rows go
// with the document via the relational cascade.
func (s *Service) Delete(ctx context.Context, orgID, documentID string) error {
	doc, err := s.docs.GetDocument(ctx, orgID, documentID)
	if err != nil {
		return err
	}

	if doc.BlobKey != "" {
		if err := s.blobs.Delete(doc.BlobKey); err != nil {
			logger.Warn("Failed to delete blob, continuing",
				zap.String("document_id", documentID),
				zap.Error(err),
			)
		}
	}
	if err := s.vectors.DeleteDocument(ctx, orgID, documentID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return s.docs.DeleteDocument(ctx, orgID, documentID)
}
