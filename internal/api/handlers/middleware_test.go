package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidforge/backend/internal/ratelimit"
)

func TestRequireOrg(t *testing.T) {
	app := fiber.New()
	app.Get("/ping", RequireOrg(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"org": orgID(c)})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Org-ID", "org-1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "org-1", body["org"])
}

func TestLimitsHandler_GetStats(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: 30,
		TokensPerMinute:   6000,
		MaxQueueSize:      50,
		QueueTimeout:      time.Second,
	})
	handler := NewLimitsHandler(limiter)

	app := fiber.New()
	app.Get("/limits", handler.GetStats)

	resp, err := app.Test(httptest.NewRequest("GET", "/limits", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stats ratelimit.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 30, stats.RequestsPerMinute)
	assert.InDelta(t, 30, stats.RequestsAvailable, 0.01)
	assert.InDelta(t, 6000, stats.TokensAvailable, 0.01)
}
