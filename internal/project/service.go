package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/analysis"
	"github.com/bidforge/backend/internal/drafting"
	"github.com/bidforge/backend/internal/extract"
	"github.com/bidforge/backend/internal/knowledge"
	"github.com/bidforge/backend/internal/storage/models"
	"github.com/bidforge/backend/pkg/logger"
)

// ErrTextTooShort rejects solicitations with too little text to analyze.
var ErrTextTooShort = errors.New("solicitation text is too short")

const minSolicitationChars = 250

// Store is the relational surface for projects and drafts, implemented by
// the sqlite client.
type Store interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, orgID, projectID string) (*models.Project, error)
	ListProjects(ctx context.Context, orgID string) ([]models.Project, error)
	UpdateProjectAnalysis(ctx context.Context, orgID, projectID, metadataJSON, requirementsJSON, matrixJSON string) error
	SaveDraftSection(ctx context.Context, section *models.DraftSection) error
	GetCurrentDraftSections(ctx context.Context, projectID string) (map[string]models.DraftSection, error)
}

// Searcher finds knowledge chunks for compliance matching.
type Searcher interface {
	Search(ctx context.Context, orgID, query string, topK int) ([]knowledge.SearchResult, error)
}

type Service struct {
	store    Store
	searcher Searcher
	drafter  drafting.Completer
}

func NewService(store Store, searcher Searcher, drafter drafting.Completer) *Service {
	return &Service{store: store, searcher: searcher, drafter: drafter}
}

type CreateInput struct {
	OrgID               string
	Name                string
	SolicitationText    string
	CompanyName         string
	CompanyProfile      string
	PastPerformance     []string
	CapabilityStatement string
}

// Result is the full analysis produced when a project is created or
// re-analyzed.
type Result struct {
	Project       *models.Project            `json:"project"`
	Metadata      analysis.Metadata          `json:"metadata"`
	Requirements  []analysis.RequirementItem `json:"requirements"`
	Matrix        []analysis.ComplianceRow   `json:"compliance_matrix"`
	Gaps          []string                   `json:"gaps"`
	DraftSections map[string]string          `json:"draft_sections"`
}

// Create analyzes the solicitation, persists the project with its derived
// artifacts, and saves the first version of every draft section.
// Knowledge-base matching is best-effort; an unreachable vector store
// degrades the matrix, never the whole request.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Result, error) {
	if len(in.SolicitationText) < minSolicitationChars {
		return nil, ErrTextTooShort
	}

	chunks := s.searchKnowledge(ctx, in.OrgID, in.SolicitationText)

	metadata := analysis.ExtractMetadata(in.SolicitationText)
	requirements := analysis.ExtractRequirements(in.SolicitationText)
	matrix := analysis.BuildComplianceMatrix(requirements, in.CompanyProfile, in.PastPerformance, in.CapabilityStatement, chunks)
	gaps := analysis.BuildGaps(matrix)

	drafts := drafting.Generate(ctx, s.drafter, drafting.Input{
		Metadata:        metadata,
		Requirements:    requirements,
		Matrix:          matrix,
		CompanyName:     in.CompanyName,
		CompanyProfile:  in.CompanyProfile,
		PastPerformance: in.PastPerformance,
	})

	metadataJSON, _ := json.Marshal(metadata)
	requirementsJSON, _ := json.Marshal(requirements)
	matrixJSON, _ := json.Marshal(matrix)
	pastPerfJSON, _ := json.Marshal(in.PastPerformance)

	now := time.Now()
	p := &models.Project{
		ID:               uuid.New().String(),
		OrgID:            in.OrgID,
		Name:             in.Name,
		RFPText:          in.SolicitationText,
		MetadataJSON:     string(metadataJSON),
		RequirementsJSON: string(requirementsJSON),
		MatrixJSON:       string(matrixJSON),
		CompanyProfile:   in.CompanyProfile,
		PastPerfJSON:     string(pastPerfJSON),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	for key, content := range drafts {
		section := &models.DraftSection{
			ID:         uuid.New().String(),
			ProjectID:  p.ID,
			SectionKey: key,
			Content:    content,
			CreatedAt:  now,
		}
		if err := s.store.SaveDraftSection(ctx, section); err != nil {
			logger.Error("Failed to save draft section",
				zap.String("project_id", p.ID),
				zap.String("section_key", key),
				zap.Error(err),
			)
		}
	}

	logger.Info("Project created",
		zap.String("project_id", p.ID),
		zap.String("org_id", p.OrgID),
		zap.Int("requirements", len(requirements)),
	)

	return &Result{
		Project:       p,
		Metadata:      metadata,
		Requirements:  requirements,
		Matrix:        matrix,
		Gaps:          gaps,
		DraftSections: drafts,
	}, nil
}

// CreateFromFile extracts text from an uploaded solicitation and runs
// Create on it.
func (s *Service) CreateFromFile(ctx context.Context, in CreateInput, filename string, data []byte) (*Result, error) {
	text, err := extract.Text(filename, data)
	if err != nil {
		return nil, err
	}
	in.SolicitationText = text
	return s.Create(ctx, in)
}

// Reanalyze re-runs extraction and compliance matching against the stored
// solicitation text and replaces the project's derived artifacts. Draft
// sections are left alone; they may contain human edits.
func (s *Service) Reanalyze(ctx context.Context, orgID, projectID string) (*Result, error) {
	p, err := s.store.GetProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}

	var pastPerf []string
	if p.PastPerfJSON != "" {
		json.Unmarshal([]byte(p.PastPerfJSON), &pastPerf)
	}

	chunks := s.searchKnowledge(ctx, orgID, p.RFPText)

	metadata := analysis.ExtractMetadata(p.RFPText)
	requirements := analysis.ExtractRequirements(p.RFPText)
	matrix := analysis.BuildComplianceMatrix(requirements, p.CompanyProfile, pastPerf, "", chunks)
	gaps := analysis.BuildGaps(matrix)

	metadataJSON, _ := json.Marshal(metadata)
	requirementsJSON, _ := json.Marshal(requirements)
	matrixJSON, _ := json.Marshal(matrix)

	err = s.store.UpdateProjectAnalysis(ctx, orgID, projectID,
		string(metadataJSON), string(requirementsJSON), string(matrixJSON))
	if err != nil {
		return nil, err
	}

	p.MetadataJSON = string(metadataJSON)
	p.RequirementsJSON = string(requirementsJSON)
	p.MatrixJSON = string(matrixJSON)

	return &Result{
		Project:      p,
		Metadata:     metadata,
		Requirements: requirements,
		Matrix:       matrix,
		Gaps:         gaps,
	}, nil
}

func (s *Service) Get(ctx context.Context, orgID, projectID string) (*models.Project, error) {
	return s.store.GetProject(ctx, orgID, projectID)
}

func (s *Service) List(ctx context.Context, orgID string) ([]models.Project, error) {
	return s.store.ListProjects(ctx, orgID)
}

func (s *Service) Drafts(ctx context.Context, orgID, projectID string) (map[string]models.DraftSection, error) {
	if _, err := s.store.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	return s.store.GetCurrentDraftSections(ctx, projectID)
}

// GapReport recomputes the gap list from the stored compliance matrix.
func (s *Service) GapReport(ctx context.Context, orgID, projectID string) ([]string, error) {
	p, err := s.store.GetProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}

	var matrix []analysis.ComplianceRow
	if p.MatrixJSON != "" {
		if err := json.Unmarshal([]byte(p.MatrixJSON), &matrix); err != nil {
			return nil, fmt.Errorf("failed to decode compliance matrix: %w", err)
		}
	}
	return analysis.BuildGaps(matrix), nil
}

func (s *Service) searchKnowledge(ctx context.Context, orgID, text string) []knowledge.SearchResult {
	if s.searcher == nil {
		return nil
	}

	query := text
	if len(query) > 1000 {
		query = query[:1000]
	}
	chunks, err := s.searcher.Search(ctx, orgID, query, 10)
	if err != nil {
		logger.Warn("Knowledge search failed, compliance matching runs without it",
			zap.String("org_id", orgID),
			zap.Error(err),
		)
		return nil
	}
	return chunks
}
