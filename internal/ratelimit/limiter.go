package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bidforge/backend/pkg/logger"
)

// ErrRateLimited is returned by callers that map a denied Acquire to an
// error. It is distinct from provider failures so the HTTP boundary can
// answer 429 with a retry hint instead of a generic fault.
var ErrRateLimited = errors.New("llm rate limit exceeded")

const defaultPollInterval = 500 * time.Millisecond

type Config struct {
	RequestsPerMinute int
	TokensPerMinute   int
	MaxQueueSize      int
	QueueTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 30,
		TokensPerMinute:   6000,
		MaxQueueSize:      50,
		QueueTimeout:      120 * time.Second,
	}
}

// Limiter is a dual token-bucket admission controller for outbound LLM
// calls. One bucket counts requests, the other counts estimated LLM tokens;
// a call is admitted only when both buckets can cover it. Buckets refill
// continuously in proportion to elapsed wall-clock time, so a drained
// limiter recovers at the steady per-minute rate rather than in minute
// steps.
//
// Waiters poll at a fixed interval instead of being woken on refill. That
// gives best-effort FIFO behavior only; under sustained overload a waiter
// can starve until its timeout fires.
type Limiter struct {
	cfg Config

	mu            sync.Mutex
	requestTokens float64
	budgetTokens  float64
	lastRefill    time.Time

	waiting       int
	totalAdmitted int64
	totalRejected int64

	pollInterval time.Duration
	now          func() time.Time
}

// Stats is an observability snapshot. It plays no part in admission.
type Stats struct {
	RequestsAvailable float64 `json:"requests_available"`
	TokensAvailable   float64 `json:"tokens_available"`
	TotalAdmitted     int64   `json:"total_admitted"`
	QueuedRequests    int     `json:"queued_requests"`
	TotalRejected     int64   `json:"total_rejected"`
	RequestsPerMinute int     `json:"requests_per_minute"`
	TokensPerMinute   int     `json:"tokens_per_minute"`
}

func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	if cfg.TokensPerMinute <= 0 {
		cfg.TokensPerMinute = 6000
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = 120 * time.Second
	}

	l := &Limiter{
		cfg:          cfg,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	l.requestTokens = float64(cfg.RequestsPerMinute)
	l.budgetTokens = float64(cfg.TokensPerMinute)
	l.lastRefill = l.now()
	return l
}

// Acquire requests permission for one outbound call costing estimatedTokens.
// It returns true once both buckets are debited, or false when the wait
// queue is full, the queue timeout elapses, or ctx is cancelled. A false
// return leaves bucket state untouched.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int) bool {
	if estimatedTokens < 1 {
		estimatedTokens = 1
	}

	l.mu.Lock()
	if l.tryConsume(estimatedTokens) {
		l.mu.Unlock()
		logger.Debug("Rate limit: immediate admit",
			zap.Int("estimated_tokens", estimatedTokens),
		)
		return true
	}
	if l.waiting >= l.cfg.MaxQueueSize {
		l.totalRejected++
		l.mu.Unlock()
		logger.Warn("Rate limit: request rejected, queue full",
			zap.Int("queue_size", l.cfg.MaxQueueSize),
		)
		return false
	}
	l.waiting++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.waiting--
		l.mu.Unlock()
	}()

	deadline := l.now().Add(l.cfg.QueueTimeout)
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.markRejected()
			return false
		case <-ticker.C:
		}

		l.mu.Lock()
		if l.tryConsume(estimatedTokens) {
			l.mu.Unlock()
			return true
		}
		timedOut := !l.now().Before(deadline)
		if timedOut {
			l.totalRejected++
		}
		l.mu.Unlock()

		if timedOut {
			logger.Warn("Rate limit: request timed out in queue",
				zap.Duration("queue_timeout", l.cfg.QueueTimeout),
			)
			return false
		}
	}
}

// Stats refreshes the buckets and returns a snapshot.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return Stats{
		RequestsAvailable: l.requestTokens,
		TokensAvailable:   l.budgetTokens,
		TotalAdmitted:     l.totalAdmitted,
		QueuedRequests:    l.waiting,
		TotalRejected:     l.totalRejected,
		RequestsPerMinute: l.cfg.RequestsPerMinute,
		TokensPerMinute:   l.cfg.TokensPerMinute,
	}
}

// tryConsume refills and, if both buckets cover the cost, debits them.
// Callers must hold l.mu.
func (l *Limiter) tryConsume(estimatedTokens int) bool {
	l.refill()
	if l.requestTokens < 1 || l.budgetTokens < float64(estimatedTokens) {
		return false
	}
	l.requestTokens--
	l.budgetTokens -= float64(estimatedTokens)
	l.totalAdmitted++
	return true
}

// refill adds elapsed/60*capacity to each bucket, clamped to capacity.
// Callers must hold l.mu.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.lastRefill = now

	l.requestTokens = min(
		float64(l.cfg.RequestsPerMinute),
		l.requestTokens+(elapsed/60.0)*float64(l.cfg.RequestsPerMinute),
	)
	l.budgetTokens = min(
		float64(l.cfg.TokensPerMinute),
		l.budgetTokens+(elapsed/60.0)*float64(l.cfg.TokensPerMinute),
	)
}

func (l *Limiter) markRejected() {
	l.mu.Lock()
	l.totalRejected++
	l.mu.Unlock()
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
