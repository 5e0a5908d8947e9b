package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidforge/backend/internal/knowledge"
	"github.com/bidforge/backend/internal/llm"
	"github.com/bidforge/backend/internal/storage/models"
)

type fakeStore struct {
	projects      map[string]*models.Project
	conversations map[string]*models.Conversation
	messages      []models.Message
	sections      map[string]models.DraftSection
	versions      map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:      make(map[string]*models.Project),
		conversations: make(map[string]*models.Conversation),
		sections:      make(map[string]models.DraftSection),
		versions:      make(map[string]int),
	}
}

func (f *fakeStore) GetProject(_ context.Context, orgID, projectID string) (*models.Project, error) {
	p, ok := f.projects[projectID]
	if !ok || p.OrgID != orgID {
		return nil, errors.New("project not found")
	}
	return p, nil
}

func (f *fakeStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	f.conversations[conv.ID] = conv
	return nil
}

func (f *fakeStore) GetConversation(_ context.Context, conversationID string) (*models.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	return conv, nil
}

func (f *fakeStore) ListConversations(_ context.Context, projectID string) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, conv := range f.conversations {
		if conv.ProjectID == projectID {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, msg *models.Message) error {
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeStore) ListMessages(_ context.Context, conversationID string, _ int) ([]models.Message, error) {
	var out []models.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveDraftSection(_ context.Context, section *models.DraftSection) error {
	key := section.ProjectID + "/" + section.SectionKey
	f.versions[key]++
	section.Version = f.versions[key]
	section.IsCurrent = true
	f.sections[key] = *section
	return nil
}

func (f *fakeStore) GetCurrentDraftSections(_ context.Context, projectID string) (map[string]models.DraftSection, error) {
	out := make(map[string]models.DraftSection)
	for key, section := range f.sections {
		if strings.HasPrefix(key, projectID+"/") {
			out[section.SectionKey] = section
		}
	}
	return out, nil
}

type fakeRetriever struct {
	result knowledge.Context
	err    error
	calls  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, _ []string, _ int) (knowledge.Context, error) {
	f.calls++
	return f.result, f.err
}

type fakeStreamer struct {
	tokens   []string
	err      error
	received [][]llm.Message
}

func (f *fakeStreamer) StreamComplete(_ context.Context, messages []llm.Message, _ float32, onToken func(string) error) error {
	f.received = append(f.received, messages)
	if f.err != nil {
		return f.err
	}
	for _, token := range f.tokens {
		if err := onToken(token); err != nil {
			return err
		}
	}
	return nil
}

func seedProject(store *fakeStore) *models.Project {
	p := &models.Project{
		ID:             "proj-1",
		OrgID:          "org-1",
		Name:           "DoD Cloud RFP",
		MetadataJSON:   `{"solicitation_number":"W91CRB-24-R-0042"}`,
		CompanyProfile: "We provide cloud migration services.",
		PastPerfJSON:   `["Agency X migration"]`,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	store.projects[p.ID] = p
	return p
}

func TestCreateConversation(t *testing.T) {
	store := newFakeStore()
	seedProject(store)
	svc := NewService(store, &fakeRetriever{}, &fakeStreamer{})

	conv, err := svc.CreateConversation(context.Background(), "org-1", "proj-1", "", "executive_summary")
	require.NoError(t, err)

	assert.Equal(t, "Chat about executive_summary", conv.Title)
	assert.Equal(t, "executive_summary", conv.SectionKey)
	assert.Contains(t, store.conversations, conv.ID)
}

func TestCreateConversation_WrongOrg(t *testing.T) {
	store := newFakeStore()
	seedProject(store)
	svc := NewService(store, &fakeRetriever{}, &fakeStreamer{})

	_, err := svc.CreateConversation(context.Background(), "org-2", "proj-1", "", "")
	assert.Error(t, err)
}

func TestStreamReply_PersistsBothMessages(t *testing.T) {
	store := newFakeStore()
	seedProject(store)
	streamer := &fakeStreamer{tokens: []string{"Here ", "is ", "advice."}}
	svc := NewService(store, &fakeRetriever{}, streamer)

	conv, err := svc.CreateConversation(context.Background(), "org-1", "proj-1", "", "")
	require.NoError(t, err)

	var streamed strings.Builder
	reply, err := svc.StreamReply(context.Background(), "org-1", "proj-1", conv.ID, "help me", func(token string) error {
		streamed.WriteString(token)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Here is advice.", reply.AssistantText)
	assert.Equal(t, "Here is advice.", streamed.String())

	msgs, err := svc.ListMessages(context.Background(), "org-1", "proj-1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "help me", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestStreamReply_UserMessageSurvivesStreamFailure(t *testing.T) {
	store := newFakeStore()
	seedProject(store)
	streamer := &fakeStreamer{err: llm.ErrProviderUnavailable}
	svc := NewService(store, &fakeRetriever{}, streamer)

	conv, err := svc.CreateConversation(context.Background(), "org-1", "proj-1", "", "")
	require.NoError(t, err)

	_, err = svc.StreamReply(context.Background(), "org-1", "proj-1", conv.ID, "help me", func(string) error { return nil })
	require.Error(t, err)

	msgs, err := svc.ListMessages(context.Background(), "org-1", "proj-1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
}

func TestStreamReply_AppliesSectionUpdates(t *testing.T) {
	store := newFakeStore()
	seedProject(store)
	streamer := &fakeStreamer{tokens: []string{
		"I tightened the summary.\n",
		`<section_update key="executive_summary">`,
		"\nSharper opening paragraph.\n",
		"</section_update>",
	}}
	svc := NewService(store, &fakeRetriever{}, streamer)

	conv, err := svc.CreateConversation(context.Background(), "org-1", "proj-1", "", "executive_summary")
	require.NoError(t, err)

	reply, err := svc.StreamReply(context.Background(), "org-1", "proj-1", conv.ID, "tighten it", func(string) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, []string{"executive_summary"}, reply.UpdatedSections)
	sections, err := store.GetCurrentDraftSections(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "Sharper opening paragraph.", sections["executive_summary"].Content)
	assert.Equal(t, 1, sections["executive_summary"].Version)
}

func TestStreamReply_SectionUpdateVersionsIncrement(t *testing.T) {
	store := newFakeStore()
	seedProject(store)
	reply := `<section_update key="executive_summary">Revision.</section_update>`
	streamer := &fakeStreamer{tokens: []string{reply}}
	svc := NewService(store, &fakeRetriever{}, streamer)

	conv, err := svc.CreateConversation(context.Background(), "org-1", "proj-1", "", "executive_summary")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.StreamReply(context.Background(), "org-1", "proj-1", conv.ID, "revise", func(string) error { return nil })
		require.NoError(t, err)
	}

	sections, _ := store.GetCurrentDraftSections(context.Background(), "proj-1")
	assert.Equal(t, 2, sections["executive_summary"].Version)
}

func TestStreamReply_RetrievalFailureIsBestEffort(t *testing.T) {
	store := newFakeStore()
	seedProject(store)
	retriever := &fakeRetriever{err: errors.New("vector store down")}
	streamer := &fakeStreamer{tokens: []string{"Reply without knowledge."}}
	svc := NewService(store, retriever, streamer)

	conv, err := svc.CreateConversation(context.Background(), "org-1", "proj-1", "", "")
	require.NoError(t, err)

	reply, err := svc.StreamReply(context.Background(), "org-1", "proj-1", conv.ID, "help", func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, retriever.calls)
	assert.Equal(t, "Reply without knowledge.", reply.AssistantText)
}

func TestStreamReply_KnowledgeContextReachesPrompt(t *testing.T) {
	store := newFakeStore()
	seedProject(store)
	retriever := &fakeRetriever{result: knowledge.Context{
		Text: "Relevant knowledge from your organization's documents:\n[From: Capabilities]\nWe hold FedRAMP High.",
	}}
	streamer := &fakeStreamer{tokens: []string{"ok"}}
	svc := NewService(store, retriever, streamer)

	conv, err := svc.CreateConversation(context.Background(), "org-1", "proj-1", "", "")
	require.NoError(t, err)

	_, err = svc.StreamReply(context.Background(), "org-1", "proj-1", conv.ID, "certifications?", func(string) error { return nil })
	require.NoError(t, err)

	require.NotEmpty(t, streamer.received)
	system := streamer.received[0][0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "FedRAMP High")
	assert.Contains(t, system.Content, "W91CRB-24-R-0042")
}

func TestStreamReply_ConversationFromOtherProjectRejected(t *testing.T) {
	store := newFakeStore()
	seedProject(store)
	other := &models.Project{ID: "proj-2", OrgID: "org-1", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	store.projects[other.ID] = other
	svc := NewService(store, &fakeRetriever{}, &fakeStreamer{tokens: []string{"x"}})

	conv, err := svc.CreateConversation(context.Background(), "org-1", "proj-1", "", "")
	require.NoError(t, err)

	_, err = svc.StreamReply(context.Background(), "org-1", "proj-2", conv.ID, "hi", func(string) error { return nil })
	assert.Error(t, err)
}
