package handlers

import (
	"github.com/gofiber/fiber/v2"
)

const orgHeader = "X-Org-ID"

// orgID resolves the caller's organization. Every data route is scoped by
// it.
func orgID(c *fiber.Ctx) string {
	return c.Get(orgHeader)
}

// RequireOrg rejects requests that carry no organization.
func RequireOrg() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if orgID(c) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "X-Org-ID header is required",
			})
		}
		return c.Next()
	}
}
