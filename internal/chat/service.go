package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/analysis"
	"github.com/bidforge/backend/internal/knowledge"
	"github.com/bidforge/backend/internal/llm"
	"github.com/bidforge/backend/internal/storage/models"
	"github.com/bidforge/backend/pkg/logger"
)

var sectionUpdateRE = regexp.MustCompile(`(?s)<section_update\s+key="([^"]+)">(.*?)</section_update>`)

const systemPrompt = `You are an expert federal proposal writer helping refine RFP response sections.
Rules:
- Only use facts from the provided context (company profile, past performance, requirements).
- Do not invent certifications, contracts, or legal claims.
- When the user asks you to revise a section, output the full revised section wrapped in:
  <section_update key="SECTION_KEY">
  ...revised content...
  </section_update>
- Outside the tags, provide your explanation of what changed and why.
- Be concise and compliance-focused.`

// Store is the relational surface the chat flow needs, implemented by the
// sqlite client.
type Store interface {
	GetProject(ctx context.Context, orgID, projectID string) (*models.Project, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, projectID string) ([]models.Conversation, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	SaveDraftSection(ctx context.Context, section *models.DraftSection) error
	GetCurrentDraftSections(ctx context.Context, projectID string) (map[string]models.DraftSection, error)
}

// Retriever is the knowledge-base lookup used to ground replies.
type Retriever interface {
	Retrieve(ctx context.Context, orgID string, queries []string, topK int) (knowledge.Context, error)
}

// Streamer is the token-streaming slice of the LLM client.
type Streamer interface {
	StreamComplete(ctx context.Context, messages []llm.Message, temperature float32, onToken func(token string) error) error
}

type Service struct {
	store     Store
	retriever Retriever
	llm       Streamer
}

func NewService(store Store, retriever Retriever, streamer Streamer) *Service {
	return &Service{store: store, retriever: retriever, llm: streamer}
}

func (s *Service) CreateConversation(ctx context.Context, orgID, projectID, title, sectionKey string) (*models.Conversation, error) {
	if _, err := s.store.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}

	if title == "" {
		subject := sectionKey
		if subject == "" {
			subject = "proposal"
		}
		title = "Chat about " + subject
	}

	conv := &models.Conversation{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		Title:      title,
		SectionKey: sectionKey,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context, orgID, projectID string) ([]models.Conversation, error) {
	if _, err := s.store.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	return s.store.ListConversations(ctx, projectID)
}

func (s *Service) ListMessages(ctx context.Context, orgID, projectID, conversationID string) ([]models.Message, error) {
	if _, err := s.conversation(ctx, orgID, projectID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID, 0)
}

// Reply is the outcome of one streamed assistant turn.
type Reply struct {
	AssistantText   string
	UpdatedSections []string
}

// StreamReply persists the user's message, streams the assistant reply
// token by token through onToken, then persists the assistant message and
// applies any <section_update> blocks as new draft section versions. The
// user message survives even when generation fails afterwards.
func (s *Service) StreamReply(ctx context.Context, orgID, projectID, conversationID, content string, onToken func(token string) error) (*Reply, error) {
	conv, err := s.conversation(ctx, orgID, projectID, conversationID)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}

	var currentSection string
	if conv.SectionKey != "" {
		if sections, err := s.store.GetCurrentDraftSections(ctx, projectID); err == nil {
			currentSection = sections[conv.SectionKey].Content
		}
	}

	userMsg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           "user",
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := s.store.InsertMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	// RAG is best-effort; chat proceeds without knowledge context when
	// retrieval fails.
	queries := []string{content}
	if conv.SectionKey != "" && currentSection != "" {
		queries = append(queries, truncate(currentSection, 500))
	}
	var ragContext string
	if s.retriever != nil {
		kctx, err := s.retriever.Retrieve(ctx, orgID, queries, 5)
		if err != nil {
			logger.Warn("Knowledge retrieval failed, replying without it",
				zap.String("conversation_id", conv.ID),
				zap.Error(err),
			)
		} else if !kctx.Empty() {
			ragContext = kctx.Text
		}
	}

	promptContext := buildContext(project, conv.SectionKey, currentSection)
	if ragContext != "" {
		promptContext += "\n\n" + ragContext
	}

	history, err := s.store.ListMessages(ctx, conv.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: systemPrompt + "\n\nProject context:\n" + promptContext,
	})
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	var sb strings.Builder
	err = s.llm.StreamComplete(ctx, messages, 0.2, func(token string) error {
		sb.WriteString(token)
		return onToken(token)
	})
	if err != nil {
		return nil, err
	}
	assistantText := sb.String()

	assistantMsg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           "assistant",
		Content:        assistantText,
		CreatedAt:      time.Now(),
	}
	if err := s.store.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	var updated []string
	for _, match := range sectionUpdateRE.FindAllStringSubmatch(assistantText, -1) {
		sectionKey := match[1]
		section := &models.DraftSection{
			ID:         uuid.New().String(),
			ProjectID:  projectID,
			SectionKey: sectionKey,
			Content:    strings.TrimSpace(match[2]),
			CreatedAt:  time.Now(),
		}
		if err := s.store.SaveDraftSection(ctx, section); err != nil {
			logger.Error("Failed to apply section update",
				zap.String("project_id", projectID),
				zap.String("section_key", sectionKey),
				zap.Error(err),
			)
			continue
		}
		updated = append(updated, sectionKey)
	}

	return &Reply{AssistantText: assistantText, UpdatedSections: updated}, nil
}

func (s *Service) conversation(ctx context.Context, orgID, projectID, conversationID string) (*models.Conversation, error) {
	if _, err := s.store.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.ProjectID != projectID {
		return nil, fmt.Errorf("conversation %s does not belong to project %s", conversationID, projectID)
	}
	return conv, nil
}

func buildContext(project *models.Project, sectionKey, currentSection string) string {
	parts := []string{"Solicitation metadata: " + project.MetadataJSON}

	if project.CompanyProfile != "" {
		parts = append(parts, "Company profile:\n"+truncate(project.CompanyProfile, 3000))
	}

	var pastPerf []string
	if project.PastPerfJSON != "" {
		json.Unmarshal([]byte(project.PastPerfJSON), &pastPerf)
	}
	if len(pastPerf) > 0 {
		if len(pastPerf) > 5 {
			pastPerf = pastPerf[:5]
		}
		lines := make([]string, len(pastPerf))
		for i, p := range pastPerf {
			lines[i] = "- " + p
		}
		parts = append(parts, "Past performance:\n"+strings.Join(lines, "\n"))
	}

	var requirements []analysis.RequirementItem
	if project.RequirementsJSON != "" {
		json.Unmarshal([]byte(project.RequirementsJSON), &requirements)
	}
	if len(requirements) > 20 {
		requirements = requirements[:20]
	}
	reqLines := make([]string, len(requirements))
	for i, r := range requirements {
		reqLines[i] = fmt.Sprintf("- %s: %s", r.ID, r.RequirementText)
	}
	parts = append(parts, "Key requirements:\n"+strings.Join(reqLines, "\n"))

	var matrix []analysis.ComplianceRow
	if project.MatrixJSON != "" {
		json.Unmarshal([]byte(project.MatrixJSON), &matrix)
	}
	if len(matrix) > 20 {
		matrix = matrix[:20]
	}
	matrixLines := make([]string, len(matrix))
	for i, m := range matrix {
		matrixLines[i] = fmt.Sprintf("- %s: %s (%s)", m.RequirementID, m.Status, m.Evidence)
	}
	parts = append(parts, "Compliance snapshot:\n"+strings.Join(matrixLines, "\n"))

	if sectionKey != "" && currentSection != "" {
		parts = append(parts, fmt.Sprintf("Current '%s' section content:\n%s", sectionKey, currentSection))
	}

	return strings.Join(parts, "\n\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
