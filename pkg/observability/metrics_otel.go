package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the ledger business metrics as OpenTelemetry
// instruments, exported over OTLP when tracing is enabled.
type OTelMetrics struct {
	paymentsRecorded  metric.Int64Counter
	paymentAmount     metric.Float64Histogram
	ledgerRejections  metric.Int64Counter
	dashboardDuration metric.Float64Histogram
	cacheLookups      metric.Int64Counter
}

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/gymledger")

	m := &OTelMetrics{}
	var err error

	m.paymentsRecorded, err = meter.Int64Counter(
		"ledger.payments",
		metric.WithDescription("Payments committed to the ledger"),
		metric.WithUnit("{payment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger.payments counter: %w", err)
	}

	m.paymentAmount, err = meter.Float64Histogram(
		"ledger.payment.amount",
		metric.WithDescription("Amount of committed payments"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger.payment.amount histogram: %w", err)
	}

	m.ledgerRejections, err = meter.Int64Counter(
		"ledger.rejections",
		metric.WithDescription("Ledger writes rejected"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger.rejections counter: %w", err)
	}

	m.dashboardDuration, err = meter.Float64Histogram(
		"reports.dashboard.duration",
		metric.WithDescription("Dashboard aggregation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reports.dashboard.duration histogram: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"catalog.cache.lookups",
		metric.WithDescription("Plan cache lookups by layer and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog.cache.lookups counter: %w", err)
	}

	return m, nil
}

// RecordPayment records a committed payment
func (m *OTelMetrics) RecordPayment(ctx context.Context, amount float64) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Add(ctx, 1)
	m.paymentAmount.Record(ctx, amount)
}

// RecordRejection records a rejected ledger write
func (m *OTelMetrics) RecordRejection(ctx context.Context, operation, reason string) {
	if m == nil {
		return
	}
	m.ledgerRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ledger.operation", operation),
		attribute.String("ledger.reason", reason),
	))
}

// RecordDashboard records a dashboard aggregation
func (m *OTelMetrics) RecordDashboard(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.dashboardDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.Bool("error", err != nil),
	))
}

// RecordCacheLookup records a plan cache lookup
func (m *OTelMetrics) RecordCacheLookup(ctx context.Context, layer string, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.layer", layer),
		attribute.Bool("cache.hit", hit),
	))
}
