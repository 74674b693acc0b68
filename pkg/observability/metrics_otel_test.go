package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMeterProvider creates a test meter provider with a manual reader
func setupTestMeterProvider(t *testing.T) *metric.ManualReader {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	return reader
}

func collectNames(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestOTelMetrics(t *testing.T) {
	reader := setupTestMeterProvider(t)
	ctx := context.Background()

	om, err := NewOTelMetrics()
	require.NoError(t, err)

	om.RecordPayment(ctx, 700)
	om.RecordPayment(ctx, 300)
	om.RecordRejection(ctx, "record_payment", "no_due")
	om.RecordDashboard(ctx, 20*time.Millisecond, errors.New("timeout"))
	om.RecordCacheLookup(ctx, "l1", true)

	got := collectNames(t, reader)
	require.Contains(t, got, "ledger.payments")
	require.Contains(t, got, "ledger.payment.amount")
	require.Contains(t, got, "ledger.rejections")
	require.Contains(t, got, "reports.dashboard.duration")
	require.Contains(t, got, "catalog.cache.lookups")

	sum, ok := got["ledger.payments"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestOTelMetricsNilSafe(t *testing.T) {
	var om *OTelMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		om.RecordPayment(ctx, 1)
		om.RecordRejection(ctx, "op", "reason")
		om.RecordDashboard(ctx, time.Second, nil)
		om.RecordCacheLookup(ctx, "l2", false)
	})
}

func TestMetricsForwardToOTel(t *testing.T) {
	reader := setupTestMeterProvider(t)
	ctx := context.Background()

	om, err := NewOTelMetrics()
	require.NoError(t, err)

	m := NewMetrics(prometheus.NewRegistry())
	m.AttachOTel(om)
	m.RecordPayment(ctx, 125)

	got := collectNames(t, reader)
	assert.Contains(t, got, "ledger.payments")
}
