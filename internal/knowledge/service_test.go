package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidforge/backend/internal/storage/blob"
	"github.com/bidforge/backend/internal/storage/models"
)

type memoryDocStore struct {
	docs      map[string]*models.KnowledgeDocument
	chunks    map[string][]models.KnowledgeChunk
	insertErr error
}

func newMemoryDocStore() *memoryDocStore {
	return &memoryDocStore{
		docs:   make(map[string]*models.KnowledgeDocument),
		chunks: make(map[string][]models.KnowledgeChunk),
	}
}

func (m *memoryDocStore) InsertDocument(_ context.Context, doc *models.KnowledgeDocument) error {
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *memoryDocStore) MarkIndexed(_ context.Context, documentID string) error {
	doc, ok := m.docs[documentID]
	if !ok {
		return errors.New("document not found")
	}
	doc.IsIndexed = true
	return nil
}

func (m *memoryDocStore) InsertChunks(_ context.Context, chunks []models.KnowledgeChunk) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, c := range chunks {
		m.chunks[c.DocumentID] = append(m.chunks[c.DocumentID], c)
	}
	return nil
}

func (m *memoryDocStore) DeleteChunksByDocument(_ context.Context, documentID string) error {
	delete(m.chunks, documentID)
	return nil
}

func (m *memoryDocStore) GetDocument(_ context.Context, orgID, documentID string) (*models.KnowledgeDocument, error) {
	doc, ok := m.docs[documentID]
	if !ok || doc.OrgID != orgID {
		return nil, errors.New("document not found")
	}
	copied := *doc
	return &copied, nil
}

func (m *memoryDocStore) ListDocuments(_ context.Context, orgID string) ([]models.KnowledgeDocument, error) {
	var out []models.KnowledgeDocument
	for _, doc := range m.docs {
		if doc.OrgID == orgID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (m *memoryDocStore) DeleteDocument(_ context.Context, orgID, documentID string) error {
	doc, ok := m.docs[documentID]
	if !ok || doc.OrgID != orgID {
		return errors.New("document not found")
	}
	delete(m.docs, documentID)
	delete(m.chunks, documentID)
	return nil
}

// failingVectorStore rejects every upsert, simulating an unreachable
// vector database.
type failingVectorStore struct {
	memoryStore
}

func (f *failingVectorStore) UpsertChunks(context.Context, []ChunkVector) error {
	return errors.New("vector store unreachable")
}

func newTestService(t *testing.T, vectors Store) (*Service, *memoryDocStore) {
	t.Helper()
	docs := newMemoryDocStore()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewService(docs, vectors, blobs, fallbackEmbedder{}), docs
}

func uploadInput(text string) UploadInput {
	return UploadInput{
		OrgID:      "org-1",
		UploadedBy: "user-1",
		Title:      "Capabilities Statement",
		DocType:    "capability",
		Filename:   "capabilities.txt",
		Data:       []byte(text),
	}
}

func TestUploadAndIndex_HappyPath(t *testing.T) {
	vectors := &memoryStore{}
	svc, docs := newTestService(t, vectors)

	doc, err := svc.UploadAndIndex(context.Background(),
		uploadInput("We provide cloud migration services.\n\nWe also run managed infrastructure."))
	require.NoError(t, err)

	assert.True(t, doc.IsIndexed)
	assert.True(t, docs.docs[doc.ID].IsIndexed)
	assert.NotEmpty(t, docs.chunks[doc.ID])
	assert.NotEmpty(t, vectors.chunks)
	for _, cv := range vectors.chunks {
		assert.Equal(t, "org-1", cv.OrgID)
		assert.Equal(t, doc.ID, cv.DocumentID)
		assert.Equal(t, "Capabilities Statement", cv.DocTitle)
	}
}

func TestUploadAndIndex_UnsupportedFormat(t *testing.T) {
	svc, docs := newTestService(t, &memoryStore{})

	in := uploadInput("binary stuff")
	in.Filename = "capabilities.exe"
	_, err := svc.UploadAndIndex(context.Background(), in)

	assert.Error(t, err)
	assert.Empty(t, docs.docs)
}

func TestUploadAndIndex_VectorFailureRollsBackChunks(t *testing.T) {
	svc, docs := newTestService(t, &failingVectorStore{})

	_, err := svc.UploadAndIndex(context.Background(),
		uploadInput("We provide cloud migration services."))
	require.Error(t, err)

	// The document row survives for a later reindex but never reads as
	// indexed, and no orphan chunk rows remain.
	require.Len(t, docs.docs, 1)
	for id, doc := range docs.docs {
		assert.False(t, doc.IsIndexed)
		assert.Empty(t, docs.chunks[id])
	}
}

func TestReindex_RecoversFailedDocument(t *testing.T) {
	failing := &failingVectorStore{}
	docs := newMemoryDocStore()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	svc := NewService(docs, failing, blobs, fallbackEmbedder{})
	_, err = svc.UploadAndIndex(context.Background(),
		uploadInput("We provide cloud migration services."))
	require.Error(t, err)

	var documentID string
	for id := range docs.docs {
		documentID = id
	}

	healthy := &memoryStore{}
	svc = NewService(docs, healthy, blobs, fallbackEmbedder{})
	doc, err := svc.Reindex(context.Background(), "org-1", documentID)
	require.NoError(t, err)

	assert.True(t, doc.IsIndexed)
	assert.NotEmpty(t, healthy.chunks)
}

func TestReindex_AlreadyIndexedIsNoop(t *testing.T) {
	vectors := &memoryStore{}
	svc, _ := newTestService(t, vectors)

	doc, err := svc.UploadAndIndex(context.Background(),
		uploadInput("We provide cloud migration services."))
	require.NoError(t, err)

	before := len(vectors.chunks)
	again, err := svc.Reindex(context.Background(), "org-1", doc.ID)
	require.NoError(t, err)
	assert.True(t, again.IsIndexed)
	assert.Equal(t, before, len(vectors.chunks))
}

func TestUploadAndIndex_EmptyDocumentIndexesTrivially(t *testing.T) {
	vectors := &memoryStore{}
	svc, _ := newTestService(t, vectors)

	doc, err := svc.UploadAndIndex(context.Background(), uploadInput("   \n\n  "))
	require.NoError(t, err)
	assert.True(t, doc.IsIndexed)
	assert.Empty(t, vectors.chunks)
}

func TestDelete_RemovesVectorsAndRows(t *testing.T) {
	vectors := &memoryStore{}
	svc, docs := newTestService(t, vectors)

	doc, err := svc.UploadAndIndex(context.Background(),
		uploadInput("We provide cloud migration services."))
	require.NoError(t, err)
	require.NotEmpty(t, vectors.chunks)

	require.NoError(t, svc.Delete(context.Background(), "org-1", doc.ID))
	assert.Empty(t, vectors.chunks)
	assert.Empty(t, docs.docs)
}

func TestDelete_WrongOrgIsRejected(t *testing.T) {
	vectors := &memoryStore{}
	svc, docs := newTestService(t, vectors)

	doc, err := svc.UploadAndIndex(context.Background(),
		uploadInput("We provide cloud migration services."))
	require.NoError(t, err)

	assert.Error(t, svc.Delete(context.Background(), "org-2", doc.ID))
	assert.Len(t, docs.docs, 1)
}

func TestSearch_ReturnsMatches(t *testing.T) {
	vectors := &memoryStore{}
	svc, _ := newTestService(t, vectors)

	_, err := svc.UploadAndIndex(context.Background(),
		uploadInput("We provide cloud migration services.\n\nWe cater weddings."))
	require.NoError(t, err)

	results, err := svc.Search(context.Background(), "org-1", "cloud migration", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.True(t, strings.Contains(results[0].ChunkText, "cloud migration"))
}
