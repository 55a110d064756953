// Package metrics wires the proxy's counters into Prometheus, the way
// dbbouncer's internal/metrics package registers a Collector against a
// private registry. Nothing here is on the spec's critical path: it is
// pure observability, additive to the core per SPEC_FULL.md.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every metric the proxy reports.
type Collector struct {
	Registry *prometheus.Registry

	sessionsTotal      *prometheus.CounterVec
	relayBytesTotal    *prometheus.CounterVec
	chainBytes         *prometheus.HistogramVec
	framingErrorsTotal prometheus.Counter
	authorizeDuration  prometheus.Histogram
}

// New creates and registers all metrics against a fresh, independent
// registry — safe to call more than once, e.g. in tests.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		sessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgproxy_sessions_total",
				Help: "Sessions by terminal outcome (relayed, denied, cancelled, startup_error, dial_error, error).",
			},
			[]string{"outcome"},
		),
		relayBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgproxy_relay_bytes_total",
				Help: "Bytes relayed per direction once a session is authorized.",
			},
			[]string{"direction"},
		),
		chainBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgproxy_relay_chain_bytes",
				Help:    "Size of each reassembled message chain written in one relay write.",
				Buckets: prometheus.ExponentialBuckets(64, 4, 10),
			},
			[]string{"direction"},
		),
		framingErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pgproxy_framing_errors_total",
				Help: "Framing errors observed on either relay half.",
			},
		),
		authorizeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pgproxy_authorize_duration_seconds",
				Help:    "Time spent waiting on the external authorizer callout.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		c.sessionsTotal,
		c.relayBytesTotal,
		c.chainBytes,
		c.framingErrorsTotal,
		c.authorizeDuration,
	)

	return c
}

func (c *Collector) SessionOutcome(outcome string) {
	if c == nil {
		return
	}
	c.sessionsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) RelayBytes(direction string, n int) {
	if c == nil {
		return
	}
	c.relayBytesTotal.WithLabelValues(direction).Add(float64(n))
	c.chainBytes.WithLabelValues(direction).Observe(float64(n))
}

func (c *Collector) FramingError() {
	if c == nil {
		return
	}
	c.framingErrorsTotal.Inc()
}

func (c *Collector) AuthorizeDurationSeconds(seconds float64) {
	if c == nil {
		return
	}
	c.authorizeDuration.Observe(seconds)
}
