package handlers

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/extract"
	"github.com/bidforge/backend/internal/project"
	"github.com/bidforge/backend/internal/storage/sqlite"
	"github.com/bidforge/backend/pkg/logger"
)

type ProjectHandler struct {
	service *project.Service
}

func NewProjectHandler(service *project.Service) *ProjectHandler {
	return &ProjectHandler{service: service}
}

func (h *ProjectHandler) CreateProject(c *fiber.Ctx) error {
	var req struct {
		Name                string   `json:"name"`
		SolicitationText    string   `json:"solicitation_text"`
		CompanyName         string   `json:"company_name"`
		CompanyProfile      string   `json:"company_profile"`
		PastPerformance     []string `json:"past_performance"`
		CapabilityStatement string   `json:"capability_statement"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" || req.SolicitationText == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and solicitation_text are required",
		})
	}

	result, err := h.service.Create(c.Context(), project.CreateInput{
		OrgID:               orgID(c),
		Name:                req.Name,
		SolicitationText:    req.SolicitationText,
		CompanyName:         req.CompanyName,
		CompanyProfile:      req.CompanyProfile,
		PastPerformance:     req.PastPerformance,
		CapabilityStatement: req.CapabilityStatement,
	})
	if err != nil {
		return h.mapCreateError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *ProjectHandler) CreateProjectFromFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to open uploaded file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to read uploaded file",
		})
	}

	name := c.FormValue("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}

	var pastPerf []string
	if raw := c.FormValue("past_performance_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &pastPerf); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid past_performance_json",
			})
		}
	}

	result, err := h.service.CreateFromFile(c.Context(), project.CreateInput{
		OrgID:               orgID(c),
		Name:                name,
		CompanyName:         c.FormValue("company_name"),
		CompanyProfile:      c.FormValue("company_profile"),
		PastPerformance:     pastPerf,
		CapabilityStatement: c.FormValue("capability_statement"),
	}, fileHeader.Filename, data)
	if err != nil {
		return h.mapCreateError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *ProjectHandler) ListProjects(c *fiber.Ctx) error {
	projects, err := h.service.List(c.Context(), orgID(c))
	if err != nil {
		logger.Error("Failed to list projects", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list projects",
		})
	}

	return c.JSON(fiber.Map{
		"projects": projects,
	})
}

func (h *ProjectHandler) GetProject(c *fiber.Ctx) error {
	p, err := h.service.Get(c.Context(), orgID(c), c.Params("id"))
	if err != nil {
		return h.mapLookupError(c, err, "Failed to get project")
	}

	return c.JSON(p)
}

func (h *ProjectHandler) ReanalyzeProject(c *fiber.Ctx) error {
	result, err := h.service.Reanalyze(c.Context(), orgID(c), c.Params("id"))
	if err != nil {
		return h.mapLookupError(c, err, "Failed to reanalyze project")
	}

	return c.JSON(result)
}

func (h *ProjectHandler) GetDrafts(c *fiber.Ctx) error {
	sections, err := h.service.Drafts(c.Context(), orgID(c), c.Params("id"))
	if err != nil {
		return h.mapLookupError(c, err, "Failed to get draft sections")
	}

	return c.JSON(fiber.Map{
		"sections": sections,
	})
}

func (h *ProjectHandler) GetGapReport(c *fiber.Ctx) error {
	gaps, err := h.service.GapReport(c.Context(), orgID(c), c.Params("id"))
	if err != nil {
		return h.mapLookupError(c, err, "Failed to build gap report")
	}

	return c.JSON(fiber.Map{
		"gaps": gaps,
	})
}

func (h *ProjectHandler) mapCreateError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, project.ErrTextTooShort):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Solicitation text is too short.",
		})
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported file type. Use PDF, DOCX, TXT, or MD.",
		})
	default:
		logger.Error("Failed to create project", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create project",
		})
	}
}

func (h *ProjectHandler) mapLookupError(c *fiber.Ctx, err error, message string) error {
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}
	logger.Error(message, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": message,
	})
}
