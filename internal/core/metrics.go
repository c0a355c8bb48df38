package core

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jo-hoe/wallpaint/internal/paint"
	"github.com/jo-hoe/wallpaint/internal/pipeline"
)

// Metrics contains the Prometheus metrics of the recolour service. It is
// handed to the pipeline as its observer.
type Metrics struct {
	runsTotal            *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	segmentationDuration prometheus.Histogram
	segmentationErrors   *prometheus.CounterVec
	candidateCount       prometheus.Histogram
	uploadsTotal         *prometheus.CounterVec
	registry             *prometheus.Registry
}

// NewMetrics creates the service metrics and registers them with registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register wallpaint metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallpaint_pipeline_runs_total",
		Help: "Total number of pipeline runs by outcome and failure kind.",
	}, []string{"outcome", "kind"})

	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallpaint_pipeline_run_duration_seconds",
		Help:    "Duration of pipeline runs in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"outcome"})

	m.segmentationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wallpaint_segmentation_duration_seconds",
		Help:    "Duration of segmentation calls in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	m.segmentationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallpaint_segmentation_errors_total",
		Help: "Total number of failed segmentation calls by kind.",
	}, []string{"kind"})

	m.candidateCount = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wallpaint_segmentation_candidates",
		Help:    "Number of candidate masks returned per segmentation call.",
		Buckets: []float64{0, 1, 2, 3, 4, 8},
	})

	m.uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallpaint_uploads_total",
		Help: "Total number of uploads by status.",
	}, []string{"status"})
}

// ObserveRun implements pipeline.Observer.
func (m *Metrics) ObserveRun(outcome pipeline.Outcome, kind paint.Kind, elapsed time.Duration) {
	m.runsTotal.WithLabelValues(string(outcome), string(kind)).Inc()
	m.runDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// ObserveSegmentation implements pipeline.Observer.
func (m *Metrics) ObserveSegmentation(elapsed time.Duration, candidates int, err error) {
	m.segmentationDuration.Observe(elapsed.Seconds())
	if err != nil {
		kind, ok := paint.KindOf(err)
		if !ok || kind != paint.KindTimeout {
			kind = paint.KindModelUnavailable
		}
		m.segmentationErrors.WithLabelValues(string(kind)).Inc()
		return
	}
	m.candidateCount.Observe(float64(candidates))
}

func (m *Metrics) RecordUpload(status string) {
	m.uploadsTotal.WithLabelValues(status).Inc()
}

// TrackPool exposes the queue and worker state of pool as gauges.
func (m *Metrics) TrackPool(pool *WorkerPool) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wallpaint_pool_active_jobs",
			Help: "Number of pipeline runs currently executing.",
		}, func() float64 { return float64(pool.ActiveJobs()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wallpaint_pool_queue_length",
			Help: "Number of pipeline runs waiting for a worker.",
		}, func() float64 { return float64(pool.QueueLength()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "wallpaint_pool_rejected_jobs_total",
			Help: "Total number of pipeline runs rejected because the queue was full.",
		}, func() float64 { return float64(pool.RejectedJobs()) }),
	}
	for _, g := range gauges {
		if err := m.registry.Register(g); err != nil {
			return fmt.Errorf("failed to register pool metrics: %w", err)
		}
	}
	return nil
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.runsTotal.Collect(ch)
	m.runDuration.Collect(ch)
	ch <- m.segmentationDuration
	m.segmentationErrors.Collect(ch)
	ch <- m.candidateCount
	m.uploadsTotal.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.runsTotal.Describe(ch)
	m.runDuration.Describe(ch)
	ch <- m.segmentationDuration.Desc()
	m.segmentationErrors.Describe(ch)
	ch <- m.candidateCount.Desc()
	m.uploadsTotal.Describe(ch)
}
