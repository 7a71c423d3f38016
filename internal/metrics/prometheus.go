package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics
type PrometheusRecorder struct {
	registry *prometheus.Registry

	installTotal    *prometheus.CounterVec
	installDuration *prometheus.HistogramVec
	runTotal        *prometheus.CounterVec
	runDuration     prometheus.Histogram
	inFlight        prometheus.Gauge
}

// NewPrometheusRecorder creates a PrometheusRecorder with its own registry,
// so several recorders can live in one process.
func NewPrometheusRecorder() *PrometheusRecorder {
	recorder := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		installTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moveboot_artifact_install_total",
				Help: "Total number of artifact install attempts",
			},
			[]string{"artifact", "strategy", "outcome"},
		),
		installDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moveboot_artifact_install_duration_seconds",
				Help:    "Duration of artifact installs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"strategy", "outcome"},
		),
		runTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moveboot_install_run_total",
				Help: "Total number of installation runs",
			},
			[]string{"success"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moveboot_install_run_duration_seconds",
				Help:    "Duration of installation runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "moveboot_artifact_installs_in_flight",
				Help: "Number of artifacts currently being installed",
			},
		),
	}

	recorder.registry.MustRegister(
		recorder.installTotal,
		recorder.installDuration,
		recorder.runTotal,
		recorder.runDuration,
		recorder.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return recorder
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordInstall implements Recorder.
func (r *PrometheusRecorder) RecordInstall(artifact, strategy, outcome string, duration time.Duration) {
	r.installTotal.WithLabelValues(artifact, strategy, outcome).Inc()
	if outcome != OutcomeSkipped {
		r.installDuration.WithLabelValues(strategy, outcome).Observe(duration.Seconds())
	}
}

// RecordRun implements Recorder.
func (r *PrometheusRecorder) RecordRun(success bool, duration time.Duration) {
	r.runTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
	r.runDuration.Observe(duration.Seconds())
}

// IncInFlight implements Recorder.
func (r *PrometheusRecorder) IncInFlight() { r.inFlight.Inc() }

// DecInFlight implements Recorder.
func (r *PrometheusRecorder) DecInFlight() { r.inFlight.Dec() }
