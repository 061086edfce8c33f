package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"monuguard/internal/pipeline"
)

// Metrics holds analysis metrics. It subscribes to the pipeline event bus.
type Metrics struct {
	// Run counters
	RunsStarted  atomic.Uint64
	RunsFinished atomic.Uint64
	RunsFailed   atomic.Uint64
	ActiveRuns   atomic.Int64

	// Frame processing counters
	FramesAnalyzed atomic.Uint64
	Detections     atomic.Uint64

	// Upload tracking
	VideosUploaded atomic.Uint64

	detectionsByClass *prometheus.CounterVec
	alertsByType      *prometheus.CounterVec
	runDuration       prometheus.Histogram

	startedMu sync.Mutex
	started   map[string]time.Time

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started:  make(map[string]time.Time),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "monuguard_runs_started_total",
			Help: "Total analysis runs started",
		},
		func() float64 { return float64(m.RunsStarted.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "monuguard_runs_finished_total",
			Help: "Total analysis runs that produced a report",
		},
		func() float64 { return float64(m.RunsFinished.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "monuguard_runs_failed_total",
			Help: "Total analysis runs that could not open the source or lost the detector",
		},
		func() float64 { return float64(m.RunsFailed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "monuguard_runs_active",
			Help: "Analysis runs currently scanning",
		},
		func() float64 { return float64(m.ActiveRuns.Load()) },
	))

	// Frame processing metrics
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "monuguard_frames_analyzed_total",
			Help: "Total sampled frames sent to the detector",
		},
		func() float64 { return float64(m.FramesAnalyzed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "monuguard_detections_total",
			Help: "Total detection records produced",
		},
		func() float64 { return float64(m.Detections.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "monuguard_videos_uploaded_total",
			Help: "Total videos uploaded through the API",
		},
		func() float64 { return float64(m.VideosUploaded.Load()) },
	))

	m.detectionsByClass = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monuguard_detections_by_class_total",
			Help: "Detection records by class",
		},
		[]string{"class"},
	)
	m.registry.MustRegister(m.detectionsByClass)

	m.alertsByType = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monuguard_alerts_total",
			Help: "Alerts raised by type and severity",
		},
		[]string{"type", "severity"},
	)
	m.registry.MustRegister(m.alertsByType)

	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "monuguard_run_duration_seconds",
		Help:    "Wall time of completed analysis runs",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
	m.registry.MustRegister(m.runDuration)
}

// OnEvent implements pipeline.EventHandler
func (m *Metrics) OnEvent(e *pipeline.Event) {
	switch e.Type {
	case pipeline.EventRunStarted:
		m.RunsStarted.Add(1)
		m.ActiveRuns.Add(1)
		m.startedMu.Lock()
		m.started[e.RunID] = time.Now()
		m.startedMu.Unlock()

	case pipeline.EventFrameAnalyzed:
		m.FramesAnalyzed.Add(1)
		m.Detections.Add(uint64(len(e.Detections)))
		for _, d := range e.Detections {
			m.detectionsByClass.WithLabelValues(d.Class).Inc()
		}

	case pipeline.EventAlertRaised:
		if e.Alert != nil {
			m.alertsByType.WithLabelValues(string(e.Alert.Type), string(e.Alert.Severity)).Inc()
		}

	case pipeline.EventRunFinished:
		m.RunsFinished.Add(1)
		m.endRun(e.RunID, true)

	case pipeline.EventRunFailed:
		m.RunsFailed.Add(1)
		m.endRun(e.RunID, false)
	}
}

// endRun closes out a run. Runs that fail before opening were never started.
func (m *Metrics) endRun(runID string, observe bool) {
	m.startedMu.Lock()
	start, ok := m.started[runID]
	delete(m.started, runID)
	m.startedMu.Unlock()

	if !ok {
		return
	}
	m.ActiveRuns.Add(-1)
	if observe {
		m.runDuration.Observe(time.Since(start).Seconds())
	}
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ pipeline.EventHandler = (*Metrics)(nil)

// VideoUploaded counts an accepted upload
func (m *Metrics) VideoUploaded() {
	m.VideosUploaded.Add(1)
}
