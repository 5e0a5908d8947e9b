package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/metrics"
	"github.com/bidforge/backend/internal/ratelimit"
	"github.com/bidforge/backend/pkg/circuitbreaker"
	"github.com/bidforge/backend/pkg/config"
	"github.com/bidforge/backend/pkg/logger"
	"github.com/bidforge/backend/pkg/retry"
)

// ErrProviderUnavailable marks completion failures caused by the provider
// itself (network, auth, open circuit). Retryable by the caller, and
// distinguishable from ratelimit.ErrRateLimited.
var ErrProviderUnavailable = errors.New("llm provider unavailable")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client wraps an OpenAI-compatible provider. Every outbound call passes
// through the rate limiter before any network I/O; admission failures
// surface as ratelimit.ErrRateLimited without touching the provider.
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	limiter        *ratelimit.Limiter
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewClient(cfg config.LLMConfig, limiter *ratelimit.Limiter) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.Log,
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.Log,
	}

	logger.Info("LLM client initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		limiter:        limiter,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// EstimateTokens is a rough prompt-plus-completion cost used for rate-limit
// admission. Four characters per token is close enough for budgeting.
func (c *Client) EstimateTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars/4 + c.maxTokens
}

// Complete runs a blocking chat completion. Returns
// ratelimit.ErrRateLimited when admission is denied, or an error wrapping
// ErrProviderUnavailable on provider failure.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float32) (string, error) {
	if !c.acquire(ctx, c.EstimateTokens(messages)) {
		metrics.LLMRequestsTotal.WithLabelValues("completion", "rate_limited").Inc()
		return "", ratelimit.ErrRateLimited
	}

	if temperature == 0 {
		temperature = c.temperature
	}

	var content string
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    toOpenAIMessages(messages),
				Temperature: temperature,
				MaxTokens:   c.maxTokens,
			})
			if err != nil {
				return fmt.Errorf("chat completion failed: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("chat completion returned no choices")
			}

			content = strings.TrimSpace(resp.Choices[0].Message.Content)

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))
			return nil
		})
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("completion", "error").Inc()
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	metrics.LLMRequestsTotal.WithLabelValues("completion", "ok").Inc()
	return content, nil
}

// StreamComplete streams a chat completion, invoking onToken for each
// content delta. The stream is not retried: once tokens flow, a mid-stream
// failure surfaces to the caller with whatever was already delivered.
func (c *Client) StreamComplete(ctx context.Context, messages []Message, temperature float32, onToken func(token string) error) error {
	if !c.acquire(ctx, c.EstimateTokens(messages)) {
		metrics.LLMRequestsTotal.WithLabelValues("stream", "rate_limited").Inc()
		return ratelimit.ErrRateLimited
	}

	if temperature == 0 {
		temperature = c.temperature
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("stream", "error").Inc()
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.LLMRequestsTotal.WithLabelValues("stream", "error").Inc()
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onToken(delta); err != nil {
			return err
		}
	}

	metrics.LLMRequestsTotal.WithLabelValues("stream", "ok").Inc()
	return nil
}

// EmbedBatch implements embedding.Provider. Failures propagate so the
// embedder can decide to fall back.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if !c.acquire(ctx, embeddingCost(texts)) {
		metrics.LLMRequestsTotal.WithLabelValues("embedding", "rate_limited").Inc()
		return nil, ratelimit.ErrRateLimited
	}

	var embeddings [][]float32
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: texts,
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			if err != nil {
				return fmt.Errorf("embedding request failed: %w", err)
			}

			embeddings = make([][]float32, 0, len(resp.Data))
			for _, data := range resp.Data {
				vec := make([]float32, len(data.Embedding))
				copy(vec, data.Embedding)
				embeddings = append(embeddings, vec)
			}
			return nil
		})
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("embedding", "error").Inc()
		return nil, err
	}

	metrics.LLMRequestsTotal.WithLabelValues("embedding", "ok").Inc()
	return embeddings, nil
}

func (c *Client) acquire(ctx context.Context, estimatedTokens int) bool {
	if c.limiter == nil {
		return true
	}
	granted := c.limiter.Acquire(ctx, estimatedTokens)
	if granted {
		metrics.RateLimitAdmitted.Inc()
	} else {
		metrics.RateLimitRejected.Inc()
	}
	return granted
}

func embeddingCost(texts []string) int {
	chars := 0
	for _, t := range texts {
		chars += len(t)
	}
	cost := chars / 4
	if cost < 1 {
		cost = 1
	}
	return cost
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
