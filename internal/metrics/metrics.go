package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidforge_llm_requests_total",
			Help: "Outbound LLM calls by kind and status",
		},
		[]string{"kind", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidforge_llm_tokens_used_total",
			Help: "LLM tokens consumed",
		},
		[]string{"model", "type"},
	)

	RateLimitAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bidforge_ratelimit_admitted_total",
			Help: "LLM calls admitted by the rate limiter",
		},
	)

	RateLimitRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bidforge_ratelimit_rejected_total",
			Help: "LLM calls rejected by the rate limiter",
		},
	)

	DocumentsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bidforge_documents_indexed_total",
			Help: "Knowledge documents fully chunked, embedded, and stored",
		},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bidforge_chunks_indexed_total",
			Help: "Knowledge chunks persisted with vectors",
		},
	)

	EmbeddingFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bidforge_embedding_fallbacks_total",
			Help: "Embedding batches served by the offline fallback",
		},
	)

	SearchResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bidforge_search_results_count",
			Help:    "Results returned per knowledge search",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bidforge_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route"},
	)
)

func Init() {
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(RateLimitAdmitted)
	prometheus.MustRegister(RateLimitRejected)
	prometheus.MustRegister(DocumentsIndexed)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(EmbeddingFallbacks)
	prometheus.MustRegister(SearchResultsCount)
	prometheus.MustRegister(RequestDuration)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
