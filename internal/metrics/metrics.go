// Package metrics exposes Prometheus instrumentation for the upload service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	uploadsTotal    *prometheus.CounterVec
	ingestJobsTotal *prometheus.CounterVec
	sessionOpsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheetflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetflow",
			Subsystem: "upload",
			Name:      "slots_total",
			Help:      "Upload slot requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	ingestJobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetflow",
			Subsystem: "ingest",
			Name:      "jobs_total",
			Help:      "Ingestion jobs by terminal status.",
		},
		[]string{"service", "status"},
	)
	sessionOpsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetflow",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session lifecycle operations by kind.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(requestTotal, requestDuration, uploadsTotal, ingestJobsTotal, sessionOpsTotal)

	return &Metrics{
		registry:        registry,
		service:         service,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		uploadsTotal:    uploadsTotal,
		ingestJobsTotal: ingestJobsTotal,
		sessionOpsTotal: sessionOpsTotal,
	}
}

// Middleware instruments every request with count and duration.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil {
				// The error handler runs after this middleware returns, so
				// the response status is not yet written for error returns.
				switch e := err.(type) {
				case interface{ HTTPStatus() int }:
					status = e.HTTPStatus()
				case *echo.HTTPError:
					status = e.Code
				default:
					status = http.StatusInternalServerError
				}
			}

			m.requestTotal.WithLabelValues(m.service, c.Request().Method, path, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(m.service, c.Request().Method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// UploadSlot counts a slot request outcome ("allocated" or "rejected").
func (m *Metrics) UploadSlot(outcome string) {
	m.uploadsTotal.WithLabelValues(m.service, outcome).Inc()
}

// IngestJob counts an ingestion job start or terminal status.
func (m *Metrics) IngestJob(status string) {
	m.ingestJobsTotal.WithLabelValues(m.service, status).Inc()
}

// SessionOp counts a session lifecycle operation.
func (m *Metrics) SessionOp(operation string) {
	m.sessionOpsTotal.WithLabelValues(m.service, operation).Inc()
}
