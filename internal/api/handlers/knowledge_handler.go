package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/extract"
	"github.com/bidforge/backend/internal/knowledge"
	"github.com/bidforge/backend/internal/storage/sqlite"
	"github.com/bidforge/backend/pkg/logger"
)

type KnowledgeHandler struct {
	service *knowledge.Service
}

func NewKnowledgeHandler(service *knowledge.Service) *KnowledgeHandler {
	return &KnowledgeHandler{service: service}
}

func (h *KnowledgeHandler) UploadDocument(c *fiber.Ctx) error {
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

	title := c.FormValue("title")
	if title == "" {
		title = fileHeader.Filename
	}

	doc, err := h.service.UploadAndIndex(c.Context(), knowledge.UploadInput{
		OrgID:      orgID(c),
		UploadedBy: c.Get("X-User-ID"),
		Title:      title,
		DocType:    c.FormValue("doc_type", "other"),
		Filename:   fileHeader.Filename,
		Data:       data,
	})
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unsupported file type. Use PDF, DOCX, TXT, or MD.",
			})
		}
		logger.Error("Failed to upload knowledge document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (h *KnowledgeHandler) ListDocuments(c *fiber.Ctx) error {
	docs, err := h.service.ListDocuments(c.Context(), orgID(c))
	if err != nil {
		logger.Error("Failed to list knowledge documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	return c.JSON(fiber.Map{
		"documents": docs,
	})
}

func (h *KnowledgeHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.service.GetDocument(c.Context(), orgID(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to get knowledge document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get document",
		})
	}

	return c.JSON(doc)
}

func (h *KnowledgeHandler) ReindexDocument(c *fiber.Ctx) error {
	doc, err := h.service.Reindex(c.Context(), orgID(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to reindex document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reindex document",
		})
	}

	return c.JSON(doc)
}

func (h *KnowledgeHandler) DeleteDocument(c *fiber.Ctx) error {
	err := h.service.Delete(c.Context(), orgID(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to delete knowledge document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *KnowledgeHandler) Search(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	results, err := h.service.Search(c.Context(), orgID(c), req.Query, req.TopK)
	if err != nil {
		logger.Error("Knowledge search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}

	return c.JSON(fiber.Map{
		"results": results,
	})
}
