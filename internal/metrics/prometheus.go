package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bertopic_stage_duration_seconds",
			Help:    "Duration of each analysis stage in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bertopic_analysis_total",
			Help: "Total number of analysis runs",
		},
		[]string{"status"},
	)

	AnalysisInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bertopic_analysis_in_flight",
			Help: "Analysis runs currently holding a worker slot",
		},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bertopic_documents_processed_total",
			Help: "Total documents processed",
		},
	)

	TopicsDiscovered = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bertopic_topics_discovered",
			Help:    "Number of non-noise topics per run",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	FallbackTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bertopic_fallback_transitions_total",
			Help: "Providers skipped by a fallback chain",
		},
		[]string{"chain", "provider"},
	)

	VisualizationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bertopic_visualization_total",
			Help: "Visualization outcomes by chart type",
		},
		[]string{"chart", "status"},
	)

	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bertopic_exports_total",
			Help: "Export artifacts produced",
		},
		[]string{"kind", "outcome"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bertopic_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bertopic_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bertopic_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	SweptFiles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bertopic_export_swept_files_total",
			Help: "Expired export files removed by the sweeper",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(StageDuration)
		prometheus.MustRegister(AnalysisTotal)
		prometheus.MustRegister(AnalysisInFlight)
		prometheus.MustRegister(DocumentsProcessed)
		prometheus.MustRegister(TopicsDiscovered)
		prometheus.MustRegister(FallbackTransitions)
		prometheus.MustRegister(VisualizationOutcomes)
		prometheus.MustRegister(ExportsTotal)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(SweptFiles)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
