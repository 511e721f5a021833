// Package metrics exports chatbot counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot"

// Metrics owns a private registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry

	replies   *prometheus.CounterVec
	ruleHits  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	generated prometheus.Counter
	duration  prometheus.Histogram
}

type Config struct {
	// Buckets for the reply latency histogram (in seconds)
	LatencyBuckets []float64
	// Runtime adds Go and process collectors.
	Runtime bool
}

func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		Runtime:        true,
	}
}

func New(cfg Config) *Metrics {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Replies sent, by provenance and confidence tier",
		},
		[]string{"provenance", "tier"},
	)

	m.ruleHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_hits_total",
			Help:      "Knowledge rules that answered a message",
		},
		[]string{"rule"},
	)

	m.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failures by pipeline stage",
		},
		[]string{"stage"},
	)

	m.generated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generated_replies_total",
			Help:      "Fallback replies written by the generative model",
		},
	)

	m.duration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_duration_seconds",
			Help:      "Time to produce a reply in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	m.registry.MustRegister(m.replies, m.ruleHits, m.errors, m.generated, m.duration)
	if cfg.Runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Reply describes one answered message.
type Reply struct {
	Provenance string
	Tier       string
	Rule       string
	Generated  bool
	Duration   time.Duration
}

// ObserveReply is nil-safe so callers can run without metrics.
func (m *Metrics) ObserveReply(r Reply) {
	if m == nil {
		return
	}
	tier := r.Tier
	if tier == "" {
		tier = "none"
	}
	m.replies.WithLabelValues(r.Provenance, tier).Inc()
	if r.Rule != "" {
		m.ruleHits.WithLabelValues(r.Rule).Inc()
	}
	if r.Generated {
		m.generated.Inc()
	}
	m.duration.Observe(r.Duration.Seconds())
}

func (m *Metrics) ObserveError(stage string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(stage).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
