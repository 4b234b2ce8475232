// Package metrics exposes Prometheus collectors for the Q&A service.
//
// All methods are safe to call on a nil *Metrics, so components can be built
// without instrumentation in tests and CLI commands.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ltiqa"

// Ask outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeCached   = "cached"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "generation_failed"
)

// Metrics groups the collectors registered for one service instance.
type Metrics struct {
	registry *prometheus.Registry

	asks       *prometheus.CounterVec
	generation prometheus.Histogram
	fragments  prometheus.Counter
	jobs       *prometheus.CounterVec
	feedback   prometheus.Counter
	launches   prometheus.Counter
	requests   *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		asks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asks_total",
			Help:      "Questions answered, by outcome.",
		}, []string{"outcome"}),
		generation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of answer generation calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_fragments_total",
			Help:      "Fragments written to course collections.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_jobs_total",
			Help:      "Ingest jobs processed, by result.",
		}, []string{"result"}),
		feedback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Feedback events recorded.",
		}),
		launches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "LTI tool launches recorded.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.asks, m.generation, m.fragments, m.jobs, m.feedback, m.launches, m.requests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackGraphSize exports the number of stored provenance triples.
func (m *Metrics) TrackGraphSize(size func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "graph_triples",
		Help:      "Triples in the provenance graph.",
	}, func() float64 { return float64(size()) }))
}

// ObserveAsk counts one answered question.
func (m *Metrics) ObserveAsk(outcome string) {
	if m == nil {
		return
	}
	m.asks.WithLabelValues(outcome).Inc()
}

// ObserveGeneration records the latency of one generation call.
func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.generation.Observe(d.Seconds())
}

// AddFragments counts fragments written by an ingest.
func (m *Metrics) AddFragments(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fragments.Add(float64(n))
}

// ObserveJob counts a finished ingest job attempt.
func (m *Metrics) ObserveJob(result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(result).Inc()
}

func (m *Metrics) IncFeedback() {
	if m == nil {
		return
	}
	m.feedback.Inc()
}

func (m *Metrics) IncLaunch() {
	if m == nil {
		return
	}
	m.launches.Inc()
}

// ObserveRequest counts one HTTP response.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
