package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes recorded by ObserveRun.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Metrics holds Prometheus collectors for the HTTP surface and pipeline runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	failedPartsTotal   prometheus.Counter
	cacheHitsTotal     prometheus.Counter
	translationsTotal  *prometheus.CounterVec
	untranslatedBlocks prometheus.Counter
	muxTotal           *prometheus.CounterVec
	activeRuns         prometheus.Gauge
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subtitler_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subtitler_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subtitler_runs_total",
		Help: "Subtitle generation runs by outcome",
	}, []string{"outcome"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "subtitler_run_duration_seconds",
		Help:    "Wall time of subtitle generation runs",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10),
	})
	failedPartsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subtitler_failed_parts_total",
		Help: "Video parts that produced no subtitles",
	})
	cacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subtitler_transcript_cache_hits_total",
		Help: "Parts served from the transcript cache",
	})
	translationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subtitler_translations_total",
		Help: "Translation passes by outcome",
	}, []string{"outcome"})
	untranslatedBlocks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subtitler_untranslated_blocks_total",
		Help: "Subtitle blocks that kept their original text",
	})
	muxTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subtitler_mux_total",
		Help: "Burn and soft mux operations by mode and outcome",
	}, []string{"mode", "outcome"})
	activeRuns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "subtitler_active_runs",
		Help: "Requests currently running a pipeline operation",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		runsTotal,
		runDuration,
		failedPartsTotal,
		cacheHitsTotal,
		translationsTotal,
		untranslatedBlocks,
		muxTotal,
		activeRuns,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
		runsTotal:          runsTotal,
		runDuration:        runDuration,
		failedPartsTotal:   failedPartsTotal,
		cacheHitsTotal:     cacheHitsTotal,
		translationsTotal:  translationsTotal,
		untranslatedBlocks: untranslatedBlocks,
		muxTotal:           muxTotal,
		activeRuns:         activeRuns,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// ObserveRun records one generation run.
func (m *Metrics) ObserveRun(outcome string, failedParts, cacheHits int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	m.failedPartsTotal.Add(float64(failedParts))
	m.cacheHitsTotal.Add(float64(cacheHits))
}

// ObserveTranslation records one translation pass.
func (m *Metrics) ObserveTranslation(outcome string, untranslated int) {
	if m == nil {
		return
	}
	m.translationsTotal.WithLabelValues(outcome).Inc()
	m.untranslatedBlocks.Add(float64(untranslated))
}

// ObserveMux records one mux operation.
func (m *Metrics) ObserveMux(mode, outcome string) {
	if m != nil {
		m.muxTotal.WithLabelValues(mode, outcome).Inc()
	}
}

// TrackRun increments the active run gauge and returns a func that
// decrements it.
func (m *Metrics) TrackRun() func() {
	if m == nil {
		return func() {}
	}
	m.activeRuns.Inc()
	return m.activeRuns.Dec
}

// Outcome classifies a run from its error and whether output has gaps.
func Outcome(partial bool, err error) string {
	switch {
	case err != nil:
		return OutcomeFailed
	case partial:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
