package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/gymledger/pkg/catalog"
	"github.com/platinummonkey/gymledger/pkg/config"
	"github.com/platinummonkey/gymledger/pkg/ledger"
	"github.com/platinummonkey/gymledger/pkg/observability"
	"github.com/platinummonkey/gymledger/pkg/reports"
	"github.com/platinummonkey/gymledger/pkg/storage/postgres"
)

var (
	runOnce     = flag.Bool("run-once", false, "Run reconciliation (and archiving, if enabled) once and exit")
	metricsAddr = flag.String("metrics-addr", ":9091", "Address for the /metrics endpoint, empty to disable")
)

type jobs struct {
	ledger   *ledger.PostgresService
	archiver *reports.Archiver
	logger   *observability.Logger
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "gymledger-reconciler")

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
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	j := &jobs{
		ledger: ledger.NewPostgresService(conns.Primary(), catalog.NewPostgresService(conns.Primary()), metrics),
		logger: logger,
	}

	if cfg.Reports.ArchiveEnabled {
		store, err := postgres.NewS3Client(context.Background(), cfg.Reports)
		if err != nil {
			logger.WithError(err).Error("Failed to create S3 client")
			os.Exit(1)
		}
		aggregator := reports.NewAggregator(conns.Replica(), cfg.Reports.Timeout, metrics)
		j.archiver = reports.NewArchiver(aggregator, store, metrics, logger)
	}

	if *runOnce {
		err := j.runOnce(context.Background())
		conns.Close()
		if err != nil {
			logger.WithError(err).Error("Run failed")
			os.Exit(1)
		}
		return
	}

	c := cron.New()

	if _, err := c.AddFunc(cfg.Reports.ReconcileCron, func() {
		defer observability.RecoverPanic(logger, "reconcile job")
		if err := j.reconcile(context.Background()); err != nil {
			logger.WithError(err).Error("Reconciliation failed")
		}
	}); err != nil {
		logger.WithError(err).Error("Failed to schedule reconciliation")
		os.Exit(1)
	}

	if j.archiver != nil {
		if _, err := c.AddFunc(cfg.Reports.ArchiveCron, func() {
			defer observability.RecoverPanic(logger, "archive job")
			if err := j.archive(context.Background()); err != nil {
				logger.WithError(err).Error("Archive failed")
			}
		}); err != nil {
			logger.WithError(err).Error("Failed to schedule archive")
			os.Exit(1)
		}
	}

	var servers []*http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		observability.RegisterMetricsEndpoint(mux, registry)
		metricsServer := &http.Server{Addr: *metricsAddr, Handler: mux, ReadTimeout: 5 * time.Second}
		servers = append(servers, metricsServer)
		go func() {
			defer observability.RecoverPanic(logger, "metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, servers...)
	registerShutdown(shutdown, c.Stop, conns.Close)

	c.Start()
	logger.WithFields(map[string]interface{}{
		"reconcile_schedule": cfg.Reports.ReconcileCron,
		"archive_schedule":   cfg.Reports.ArchiveCron,
		"archive_enabled":    j.archiver != nil,
	}).Info("Reconciler started")

	if err := shutdown.WaitForSignal(context.Background()); err != nil {
		logger.WithError(err).Error("Shutdown incomplete")
		os.Exit(1)
	}
}

// registerShutdown stops the scheduler before the database pools close, so
// a job that is still running finishes against open connections.
func registerShutdown(sm *observability.ShutdownManager, stopJobs func() context.Context, closeDB func() error) {
	sm.Register("postgres", func(ctx context.Context) error { return closeDB() })
	sm.Register("cron", func(ctx context.Context) error {
		select {
		case <-stopJobs().Done():
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
		}
	})
}

func (j *jobs) runOnce(ctx context.Context) error {
	if err := j.reconcile(ctx); err != nil {
		return fmt.Errorf("reconciliation: %w", err)
	}
	if j.archiver != nil {
		if err := j.archive(ctx); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	return nil
}

func (j *jobs) reconcile(ctx context.Context) error {
	start := time.Now()
	found, err := j.ledger.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	for _, d := range found {
		j.logger.WithFields(map[string]interface{}{
			"member_id":        d.MemberID,
			"owner_id":         d.CreatedBy,
			"collected_amount": d.Collected.StringFixed(2),
			"payments_total":   d.PaymentsTotal.StringFixed(2),
			"difference":       d.Difference.StringFixed(2),
		}).Warn("Ledger discrepancy")
	}
	j.logger.WithFields(map[string]interface{}{
		"discrepancies": len(found),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Reconciliation completed")
	return nil
}

func (j *jobs) archive(ctx context.Context) error {
	written, err := j.archiver.ArchivePreviousMonth(ctx)
	j.logger.WithField("snapshots", written).Info("Archive run finished")
	return err
}
