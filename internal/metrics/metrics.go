// Package metrics collects and exposes Prometheus metrics for the
// identity core.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraemahz/subseq-util/internal/db"
)

// Collector implements the metrics sinks consumed by the pool and the
// authentication adapter.
type Collector struct {
	registry *prometheus.Registry

	logins        *prometheus.CounterVec
	validations   *prometheus.CounterVec
	poolAcquire   prometheus.Histogram
	poolExhausted prometheus.Counter
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_login_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_session_validation_total",
			Help: "Session validations by outcome.",
		}, []string{"outcome"}),
		poolAcquire: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_pool_acquire_seconds",
			Help:    "Time spent acquiring a pooled database connection.",
			Buckets: prometheus.DefBuckets,
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identity_pool_exhausted_total",
			Help: "Connection acquisitions that timed out on a full pool.",
		}),
	}
	reg.MustRegister(c.logins, c.validations, c.poolAcquire, c.poolExhausted)
	return c
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordValidation(outcome string) {
	c.validations.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveAcquire(d time.Duration, err error) {
	c.poolAcquire.Observe(d.Seconds())
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, db.ErrPoolExhausted) {
		c.poolExhausted.Inc()
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
