package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Ledger metrics
	MembersCreatedTotal    prometheus.Counter
	PaymentsRecordedTotal  prometheus.Counter
	PaymentAmountTotal     prometheus.Counter
	LedgerRejectionsTotal  *prometheus.CounterVec
	LedgerDiscrepancies    prometheus.Gauge
	DashboardDuration      prometheus.Histogram
	DashboardFailuresTotal prometheus.Counter
	DashboardArchivesTotal *prometheus.CounterVec

	otel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymledger_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gymledger_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gymledger_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gymledger_db_connections_active",
			Help: "Number of active database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gymledger_db_connections_idle",
			Help: "Number of idle database connections",
		}),
		DBConnectionsWaitCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gymledger_db_connections_wait_count",
			Help: "Total number of connections waited for",
		}),
		DBConnectionsWaitDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gymledger_db_connections_wait_duration_seconds",
			Help: "Total time spent waiting for connections",
		}),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymledger_plan_cache_hits_total",
				Help: "Total number of plan cache hits",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymledger_plan_cache_misses_total",
				Help: "Total number of plan cache misses",
			},
			[]string{"layer"},
		),

		MembersCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymledger_members_created_total",
			Help: "Total number of members created",
		}),
		PaymentsRecordedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymledger_payments_recorded_total",
			Help: "Total number of payments recorded, including initial admission payments",
		}),
		PaymentAmountTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymledger_payment_amount_total",
			Help: "Sum of recorded payment amounts",
		}),
		LedgerRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymledger_ledger_rejections_total",
				Help: "Ledger writes rejected, by reason",
			},
			[]string{"operation", "reason"},
		),
		LedgerDiscrepancies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gymledger_ledger_discrepancies",
			Help: "Members whose payment history does not sum to the collected amount, as of the last reconciliation",
		}),
		DashboardDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gymledger_dashboard_duration_seconds",
			Help:    "Dashboard aggregation duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		DashboardFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymledger_dashboard_failures_total",
			Help: "Dashboard aggregations aborted by a failing metric",
		}),
		DashboardArchivesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymledger_dashboard_archives_total",
				Help: "Dashboard snapshots written to object storage",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.MembersCreatedTotal,
		m.PaymentsRecordedTotal,
		m.PaymentAmountTotal,
		m.LedgerRejectionsTotal,
		m.LedgerDiscrepancies,
		m.DashboardDuration,
		m.DashboardFailuresTotal,
		m.DashboardArchivesTotal,
	)

	return m
}

// AttachOTel mirrors the business metrics to OpenTelemetry instruments
func (m *Metrics) AttachOTel(om *OTelMetrics) {
	if m == nil {
		return
	}
	m.otel = om
}

// The helpers below are nil-safe so services can be built without metrics.

// RecordCacheHit counts a plan cache hit on the given layer ("l1", "l2")
func (m *Metrics) RecordCacheHit(ctx context.Context, layer string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(layer).Inc()
	m.otel.RecordCacheLookup(ctx, layer, true)
}

// RecordCacheMiss counts a plan cache miss on the given layer
func (m *Metrics) RecordCacheMiss(ctx context.Context, layer string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(layer).Inc()
	m.otel.RecordCacheLookup(ctx, layer, false)
}

// RecordMemberCreated counts a member creation
func (m *Metrics) RecordMemberCreated() {
	if m == nil {
		return
	}
	m.MembersCreatedTotal.Inc()
}

// RecordPayment counts a committed payment and its amount
func (m *Metrics) RecordPayment(ctx context.Context, amount float64) {
	if m == nil {
		return
	}
	m.PaymentsRecordedTotal.Inc()
	m.PaymentAmountTotal.Add(amount)
	m.otel.RecordPayment(ctx, amount)
}

// RecordRejection counts a rejected ledger write
func (m *Metrics) RecordRejection(ctx context.Context, operation, reason string) {
	if m == nil {
		return
	}
	m.LedgerRejectionsTotal.WithLabelValues(operation, reason).Inc()
	m.otel.RecordRejection(ctx, operation, reason)
}

// SetDiscrepancies records the result of the latest reconciliation
func (m *Metrics) SetDiscrepancies(n int) {
	if m == nil {
		return
	}
	m.LedgerDiscrepancies.Set(float64(n))
}

// ObserveDashboard records a dashboard aggregation
func (m *Metrics) ObserveDashboard(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DashboardDuration.Observe(d.Seconds())
	if err != nil {
		m.DashboardFailuresTotal.Inc()
	}
	m.otel.RecordDashboard(ctx, d, err)
}

// RecordArchive counts a dashboard snapshot upload
func (m *Metrics) RecordArchive(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DashboardArchivesTotal.WithLabelValues(status).Inc()
}

// UpdateDBStats copies connection pool statistics into the DB gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeTemplate returns the mux route template so that per-id paths share a label
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := routeTemplate(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
