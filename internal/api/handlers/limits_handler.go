package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bidforge/backend/internal/ratelimit"
)

type LimitsHandler struct {
	limiter *ratelimit.Limiter
}

func NewLimitsHandler(limiter *ratelimit.Limiter) *LimitsHandler {
	return &LimitsHandler{limiter: limiter}
}

// GetStats exposes the LLM rate limiter's live bucket state.
func (h *LimitsHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(h.limiter.Stats())
}
