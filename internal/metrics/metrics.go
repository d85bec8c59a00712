// Package metrics exposes the gateway's Prometheus metrics on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the gateway.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	BackendCalls    *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec

	ConflictsOpened   prometheus.Counter
	ConflictsResolved *prometheus.CounterVec
	MovesPlanned      *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		BackendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Total number of document server calls",
		}, []string{"method", "status"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Document server call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ConflictsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_opened_total",
			Help:      "Total number of version conflicts opened",
		}),
		ConflictsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_resolved_total",
			Help:      "Total number of conflict resolutions by outcome",
		}, []string{"outcome"}),
		MovesPlanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_planned_total",
			Help:      "Total number of drag-and-drop moves by outcome",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of load de-dup hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of load de-dup misses",
		}),
	}
	c.registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.BackendCalls, c.BackendDuration,
		c.ConflictsOpened, c.ConflictsResolved, c.MovesPlanned,
		c.CacheHits, c.CacheMisses,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveBackend matches the backend client's Observe hook. status 0 is a
// transport failure.
func (c *Collector) ObserveBackend(method string, status int, elapsed time.Duration) {
	c.BackendCalls.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.BackendDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (c *Collector) Dedup(shared bool) {
	if shared {
		c.CacheHits.Inc()
		return
	}
	c.CacheMisses.Inc()
}
