package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_records_ingested_total",
			Help: "Total records ingested per source",
		},
		[]string{"source", "status"},
	)

	InferenceCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_inference_calls_total",
			Help: "Inference service calls by task and outcome",
		},
		[]string{"task", "status"},
	)

	InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signals_inference_duration_seconds",
			Help:    "Inference call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"task"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	BatchFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_batch_fallbacks_total",
			Help: "Rows that received the fallback classification",
		},
		[]string{"task", "reason"},
	)

	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signals_analysis_duration_seconds",
			Help:    "End-to-end analysis endpoint duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	EmbeddingsIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_embeddings_indexed_total",
			Help: "Email embeddings written to the vector index",
		},
		[]string{"status"},
	)

	SimilarityLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_similarity_lookups_total",
			Help: "Similar-email lookups by outcome",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signals_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	InsightEventsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signals_insight_events_persisted_total",
			Help: "Cross-source events written to the audit log",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RecordsIngested)
		prometheus.MustRegister(InferenceCalls)
		prometheus.MustRegister(InferenceDuration)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(BatchFallbacks)
		prometheus.MustRegister(AnalysisDuration)
		prometheus.MustRegister(EmbeddingsIndexed)
		prometheus.MustRegister(SimilarityLookups)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(CircuitState)
		prometheus.MustRegister(InsightEventsPersisted)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
