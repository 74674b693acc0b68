// Package observability provides the service's logging, metrics, tracing,
// health checks and graceful shutdown.
//
// Logging is structured JSON via logrus. Metrics are exported in the
// Prometheus format on the health port (/metrics) and, when OpenTelemetry
// is enabled, the ledger business metrics are mirrored to OTLP alongside
// traces.
//
// Typical wiring in main:
//
//	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	providers, err := observability.InitOTel(ctx, otelCfg, logger)
//
//	healthMux := http.NewServeMux()
//	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, version))
//	observability.RegisterMetricsEndpoint(healthMux, registry)
package observability
