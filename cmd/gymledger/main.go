package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/gymledger/pkg/api"
	"github.com/platinummonkey/gymledger/pkg/auth"
	"github.com/platinummonkey/gymledger/pkg/catalog"
	"github.com/platinummonkey/gymledger/pkg/config"
	"github.com/platinummonkey/gymledger/pkg/expenses"
	"github.com/platinummonkey/gymledger/pkg/ledger"
	"github.com/platinummonkey/gymledger/pkg/middleware"
	"github.com/platinummonkey/gymledger/pkg/observability"
	"github.com/platinummonkey/gymledger/pkg/reports"
	"github.com/platinummonkey/gymledger/pkg/storage/postgres"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "gymledger").
		WithField("version", version)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("gymledger exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		if otelProviders != nil {
			otelMetrics, err := observability.NewOTelMetrics()
			if err != nil {
				return fmt.Errorf("failed to create OpenTelemetry metrics: %w", err)
			}
			metrics.AttachOTel(otelMetrics)
		}
	}

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(ctx, conns.Primary(), logger); err != nil {
			conns.Close()
			return err
		}
	}
	conns.StartMaintenance(ctx, 30*time.Second, metrics)

	var redisClient *postgres.RedisClient
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(cfg.Redis)
		if err != nil {
			conns.Close()
			return err
		}
		logger.Info("Connected to Redis")
	}

	var plans catalog.Service = catalog.NewPostgresService(conns.Primary())
	if cfg.Cache.Enabled {
		plans = catalog.NewCachedService(plans, catalog.CacheConfig{
			L1Size: cfg.Cache.L1Size,
			L1TTL:  cfg.Cache.L1TTL,
			L2TTL:  cfg.Cache.L2TTL,
		}, redisClient, metrics, logger)
	}

	members := ledger.NewPostgresService(conns.Primary(), plans, metrics)
	expenseService := expenses.NewPostgresService(conns.Primary())
	dashboards := reports.NewAggregator(conns.Replica(), cfg.Reports.Timeout, metrics)

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		limitCfg := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			WindowDuration:    cfg.RateLimit.Window,
		}
		if redisClient != nil {
			limiter = middleware.NewRedisRateLimiter(redisClient.Client(), limitCfg, "")
		} else {
			memLimiter := middleware.NewMemoryRateLimiter(limitCfg)
			memLimiter.StartCleanup(ctx)
			limiter = memLimiter
		}
	}

	server := api.NewServer(api.Options{
		Plans:         plans,
		Members:       members,
		Expenses:      expenseService,
		Dashboards:    dashboards,
		Authenticator: auth.NewHMACAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		Limiter:       limiter,
		Metrics:       metrics,
		Logger:        logger,
		CORSOrigins:   cfg.Server.CORSOrigins,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var rawRedis *redis.Client
	if redisClient != nil {
		rawRedis = redisClient.Client()
	}
	health := observability.NewHealthChecker(conns.Primary(), rawRedis, version)
	health.AddCheck("replicas", conns.HealthCheck, false)

	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, health)
	if metrics != nil {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     opsMux,
		ReadTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, opsServer)
	shutdown.Register("postgres", func(ctx context.Context) error { return conns.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(ctx context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, opsServer} {
		go func(srv *http.Server) {
			defer observability.RecoverPanic(logger, "http server "+srv.Addr)
			logger.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("Server failed, shutting down")
			cancel()
		}
	}()

	return shutdown.WaitForSignal(ctx)
}
