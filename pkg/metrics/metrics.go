// Package metrics holds the Prometheus collectors of the catalog service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalog"

// Metrics is nil-safe: every recording method is a no-op on a nil receiver,
// so components can be built without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ImportRowsTotal     *prometheus.CounterVec
	ImagesTotal         *prometheus.CounterVec
	ImageDuration       prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ImportRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Imported rows by entity and outcome",
		}, []string{"entity", "outcome"}),
		ImagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Image normalization decisions by result",
		}, []string{"result"}),
		ImageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_normalize_duration_seconds",
			Help:      "Time spent decoding, resizing and encoding an image",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ImportRowsTotal,
		m.ImagesTotal,
		m.ImageDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveImport(entity, outcome string) {
	if m == nil {
		return
	}
	m.ImportRowsTotal.WithLabelValues(entity, outcome).Inc()
}

func (m *Metrics) ObserveImage(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(result).Inc()
	if took > 0 {
		m.ImageDuration.Observe(took.Seconds())
	}
}

// GinMiddleware records request counts and latencies per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
