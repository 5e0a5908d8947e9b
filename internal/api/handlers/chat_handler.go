package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/chat"
	"github.com/bidforge/backend/internal/ratelimit"
	"github.com/bidforge/backend/internal/storage/sqlite"
	"github.com/bidforge/backend/pkg/logger"
)

type ChatHandler struct {
	service *chat.Service
}

func NewChatHandler(service *chat.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	var req struct {
		Title      string `json:"title"`
		SectionKey string `json:"section_key"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	conv, err := h.service.CreateConversation(c.Context(), orgID(c), c.Params("id"), req.Title, req.SectionKey)
	if err != nil {
		return mapChatError(c, err, "Failed to create conversation")
	}

	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	convs, err := h.service.ListConversations(c.Context(), orgID(c), c.Params("id"))
	if err != nil {
		return mapChatError(c, err, "Failed to list conversations")
	}

	return c.JSON(fiber.Map{
		"conversations": convs,
	})
}

func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	msgs, err := h.service.ListMessages(c.Context(), orgID(c), c.Params("id"), c.Params("convID"))
	if err != nil {
		return mapChatError(c, err, "Failed to list messages")
	}

	return c.JSON(fiber.Map{
		"messages": msgs,
	})
}

// SendMessage streams the assistant reply as server-sent events. The
// request is rejected up front when the rate limiter has no budget; once
// the first token arrives the response is committed as a stream and later
// failures become error events.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "content is required",
		})
	}

	org := orgID(c)
	projectID := c.Params("id")
	conversationID := c.Params("convID")

	ctx, cancel := context.WithCancel(context.Background())

	tokens := make(chan string, 32)
	done := make(chan struct{})
	var streamErr error

	go func() {
		defer close(done)
		_, streamErr = h.service.StreamReply(ctx, org, projectID, conversationID, req.Content,
			func(token string) error {
				select {
				case tokens <- token:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		close(tokens)
	}()

	// Wait for the first token so pre-stream failures still get a real
	// status code.
	var firstToken string
	select {
	case token, ok := <-tokens:
		if !ok {
			<-done
			cancel()
			return h.mapStreamError(c, streamErr)
		}
		firstToken = token
	case <-done:
		// The reply may have completed entirely into the buffer.
		token, ok := <-tokens
		if !ok {
			cancel()
			return h.mapStreamError(c, streamErr)
		}
		firstToken = token
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		writeSSE(w, "", firstToken)
		for token := range tokens {
			writeSSE(w, "", token)
		}
		<-done

		if streamErr != nil {
			logger.Error("Chat stream failed mid-reply", zap.Error(streamErr))
			writeSSE(w, "error", streamErr.Error())
			return
		}
		writeSSE(w, "done", "{}")
	}))

	return nil
}

func (h *ChatHandler) mapStreamError(c *fiber.Ctx, err error) error {
	if err == nil {
		// Stream finished without producing a single token.
		return c.JSON(fiber.Map{"message": ""})
	}
	if errors.Is(err, ratelimit.ErrRateLimited) {
		c.Set("Retry-After", "30")
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "LLM rate limit exceeded, try again shortly",
		})
	}
	return mapChatError(c, err, "Failed to generate reply")
}

func mapChatError(c *fiber.Ctx, err error, message string) error {
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
		})
	}
	logger.Error(message, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": message,
	})
}

func writeSSE(w *bufio.Writer, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.Flush()
}
