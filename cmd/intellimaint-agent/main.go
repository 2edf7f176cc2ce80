// Package main — cmd/intellimaint-agent/main.go
//
// IntelliMaint agent entrypoint.
//
// Startup sequence:
//  1. Load and validate config from /etc/intellimaint/config.yaml.
//  2. Initialise structured logger (zap, configured level/format).
//  3. Open the Postgres pool and local BoltDB store-and-forward file.
//  4. Open the audit ledger against the same BoltDB handle.
//  5. Build the rate limiter and every Postgres-backed store adapter.
//  6. Prime the baseline/rule caches with a synchronous first refresh.
//  7. Start the Prometheus metrics server.
//  8. Start the ingest HTTP server.
//  9. Start the edge filter/sender pipeline (send, monitor, replay loops).
// 10. Start the collection engine, alarm worker, health/motor/prognostics
//     workers, and the aggregation/cleanup retention workers.
// 11. Register SIGHUP handler for config hot-reload.
// 12. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel root context (propagates to all goroutines).
//  2. Wait a fixed 5s for in-flight work to drain.
//  3. Close the Postgres pool and BoltDB.
//  4. Flush the logger.
//  5. Exit 0.
//
// On config validation failure: exit 1 immediately.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/alarm"
	"github.com/leopark123/intellimaint-pro/internal/audit"
	"github.com/leopark123/intellimaint-pro/internal/collection"
	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/edge"
	"github.com/leopark123/intellimaint-pro/internal/forward"
	"github.com/leopark123/intellimaint-pro/internal/health"
	"github.com/leopark123/intellimaint-pro/internal/ingest"
	"github.com/leopark123/intellimaint-pro/internal/motor"
	"github.com/leopark123/intellimaint-pro/internal/observability"
	"github.com/leopark123/intellimaint-pro/internal/prognostics"
	"github.com/leopark123/intellimaint-pro/internal/ratelimit"
	"github.com/leopark123/intellimaint-pro/internal/retention"
	"github.com/leopark123/intellimaint-pro/internal/store"
)

func main() {
	// ── Flags ─────────────────────────────────────────────────────────────────
	configPath := flag.String("config", "/etc/intellimaint/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("intellimaint-agent %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ─────────────────────────────────────────────
	log, err := observability.BuildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("IntelliMaint agent starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queryTimeout := time.Duration(cfg.Storage.QueryTimeoutSeconds) * time.Second

	// ── Step 3: Open Postgres pool and BoltDB ─────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		log.Fatal("postgres pool open failed", zap.Error(err))
	}
	defer pool.Close()
	log.Info("postgres pool opened")

	metrics := observability.NewMetrics()

	buffer, boltDB, err := forward.Open(cfg.Storage.BoltDBPath, cfg.StoreForward.MaxStoreSizeMB, cfg.StoreForward.RetentionDays, log, metrics)
	if err != nil {
		log.Fatal("boltdb open failed", zap.Error(err), zap.String("path", cfg.Storage.BoltDBPath))
	}
	defer boltDB.Close() //nolint:errcheck
	log.Info("boltdb opened", zap.String("path", cfg.Storage.BoltDBPath))

	// ── Step 4: Audit ledger ───────────────────────────────────────────────────
	auditStore, err := audit.Open(boltDB)
	if err != nil {
		log.Fatal("audit ledger open failed", zap.Error(err))
	}
	ledger := audit.NewLedger(log, false)
	recorder := audit.NewRecorder(ledger, auditStore, cfg.NodeID)

	// ── Step 5: Rate limiter and store adapters ───────────────────────────────
	limiter := ratelimit.New(cfg.RateLimit, ratelimit.DefaultCostModel())

	telemetry := store.NewPostgresStore(pool, log, queryTimeout, limiter)
	alarmStore := store.NewAlarmStore(pool, log, queryTimeout)
	alarmRuleStore := store.NewAlarmRuleStore(pool, log, queryTimeout)
	ruleStore := store.NewRuleStore(pool, log, queryTimeout)
	segmentStore := store.NewSegmentStore(pool, log, queryTimeout)
	baselineStore := store.NewBaselineStore(pool, log, queryTimeout)
	baselineCache := store.NewBaselineCache(baselineStore, log)
	ruleCache := store.NewRuleCache(ruleStore, baselineCache)
	tagValues := store.NewTagValuesAdapter(telemetry)
	alarmWindows := store.NewAlarmWindowSource(alarmStore, queryTimeout)
	aggregateState := store.NewAggregateStateStore(pool, log, queryTimeout)
	deviceStore := store.NewDeviceStore(pool, log, queryTimeout)
	resultStore := store.NewResultStore(pool, log, queryTimeout)
	motorConfigStore := store.NewMotorConfigStore(pool, log, queryTimeout)
	motorTelemetry := store.NewMotorTelemetryAdapter(telemetry)

	telemetry1mDeleter := store.NewTableDeleter(pool, log, queryTimeout, "telemetry_1m", "ts")
	telemetry1hDeleter := store.NewTableDeleter(pool, log, queryTimeout, "telemetry_1h", "ts")

	cycleSink := store.NewCycleAnalysisSink(segmentStore, telemetry, resultStore, cfg.Cycle, log).WithAuditor(recorder)

	// ── Step 6: Prime caches ───────────────────────────────────────────────────
	if err := baselineCache.Refresh(ctx); err != nil {
		log.Warn("baseline cache initial refresh failed", zap.Error(err))
	}
	if err := ruleCache.Refresh(ctx); err != nil {
		log.Warn("rule cache initial refresh failed", zap.Error(err))
	}
	go refreshLoop(ctx, time.Minute, log, "baseline_cache", baselineCache.Refresh)
	go refreshLoop(ctx, time.Minute, log, "rule_cache", ruleCache.Refresh)

	// ── Step 7: Prometheus metrics ─────────────────────────────────────────────
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 8: Ingest server ──────────────────────────────────────────────────
	ingestSrv := ingest.NewServer(telemetry, metrics, log)
	go func() {
		if err := ingestSrv.Serve(ctx, cfg.Network.IngestListenAddr); err != nil {
			log.Error("ingest server error", zap.Error(err))
		}
	}()
	log.Info("ingest server started", zap.String("addr", cfg.Network.IngestListenAddr))

	// ── Step 9: Edge filter/sender pipeline ───────────────────────────────────
	filterCfg := edge.FilterConfig{
		DefaultDeadband:        cfg.Processing.DefaultDeadband,
		DefaultDeadbandPercent: cfg.Processing.DefaultDeadbandPercent,
		ForceUploadIntervalMs:  cfg.Processing.ForceUploadIntervalMs,
		OutlierSigmaThreshold:  cfg.Processing.OutlierSigmaThreshold,
		OutlierAction:          edge.ParseOutlierAction(cfg.Processing.OutlierAction),
	}
	filter := edge.NewFilter(filterCfg)

	transport := edge.NewHTTPTransport(cfg.Network.IngestURL, cfg.Network.HealthURL,
		time.Duration(cfg.Network.HealthCheckTimeoutMs)*time.Millisecond)

	senderCfg := edge.SenderConfig{
		QueueCapacity:         cfg.Edge.QueueCapacityGlobal,
		SendBatchSize:         cfg.Network.SendBatchSize,
		SendIntervalMs:        cfg.Network.SendIntervalMs,
		CompressionAlgorithm:  cfg.StoreForward.CompressionAlgorithm,
		HealthCheckIntervalMs: cfg.Network.HealthCheckIntervalMs,
		HealthCheckTimeoutMs:  cfg.Network.HealthCheckTimeoutMs,
		OfflineThreshold:      cfg.Network.OfflineThreshold,
	}
	sender, err := edge.NewSender(senderCfg, filter, transport, buffer, metrics, log)
	if err != nil {
		log.Fatal("sender construction failed", zap.Error(err))
	}
	sender.SetReplaySource(buffer)
	go sender.RunSendLoop(ctx)
	go sender.RunMonitorLoop(ctx)
	go sender.RunReplayLoop(ctx, 30*time.Second)
	log.Info("edge sender pipeline started")

	// ── Step 10: Collection, alarm, analytics, retention workers ──────────────
	collectionEngine := collection.NewEngine(telemetry, ruleStore, cycleSink, metrics, log, limiter)
	go collectionEngine.Run(ctx)
	log.Info("collection engine started")

	alarmEvaluator := alarm.NewEvaluator()
	alarmAggregator := alarm.NewAggregator(alarmStore)
	alarmWorker := alarm.NewWorker(telemetry, alarmRuleStore, alarmEvaluator, alarmAggregator, cfg.Alarm, log)
	go alarmWorker.Run(ctx)
	log.Info("alarm worker started")

	healthEngine := health.NewEngine(tagValues, baselineCache, alarmWindows, ruleCache, cfg.HealthAssessment, cfg.MultiScale)
	healthWorker := health.NewWorker(deviceStore, healthEngine, resultStore, time.Minute, log)
	go healthWorker.Run(ctx)
	log.Info("health worker started")

	motorWorker := motor.NewWorker(motorConfigStore, motorTelemetry, resultStore, cfg.DynamicBaseline, log)
	go motorWorker.Run(ctx)
	log.Info("motor baseline worker started")

	prognosticsWorker := prognostics.NewWorker(deviceStore, baselineCache, tagValues, alarmRuleStore, resultStore,
		cfg.TrendPrediction, cfg.RulPrediction, cfg.Degradation, log)
	go prognosticsWorker.Run(ctx)
	log.Info("prognostics worker started")

	aggregationWorker := retention.NewAggregationWorker(pool, log, aggregateState, time.Duration(cfg.DataCleanup.AggregationIntervalMinutes)*time.Minute)
	go func() {
		if err := aggregationWorker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("aggregation worker exited", zap.Error(err))
		}
	}()

	cleanupWorker := retention.NewCleanupWorker(cfg.DataCleanup, log, aggregateState, telemetry, telemetry1mDeleter, telemetry1hDeleter, nil)
	extrasFn := func(now int64) []retention.Target {
		return []retention.Target{
			{Name: "alarm_record", Store: alarmDeleter{alarmStore}, CutoffTs: now - cfg.DataCleanup.AlarmRetentionDays*86_400_000},
			{Name: "audit_ledger", Store: auditStore, CutoffTs: now - cfg.DataCleanup.AuditLogRetentionDays*86_400_000},
		}
	}
	go func() {
		if err := cleanupWorker.Run(ctx, extrasFn); err != nil && ctx.Err() == nil {
			log.Error("cleanup worker exited", zap.Error(err))
		}
	}()
	log.Info("retention workers started")

	// ── Step 11: SIGHUP hot-reload ─────────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			// Only the knobs read synchronously at reload time take
			// effect; workers built with a config snapshot at startup
			// (alarm cache refresh period, collection tick interval,
			// etc.) keep running with their original values until
			// restart — the same limited hot-reload the teacher's
			// agent performs.
			log.Info("config hot-reload successful", zap.String("schema_version", newCfg.SchemaVersion))
		}
	}()

	// ── Step 12: Wait for shutdown signal ──────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()

	shutdownTimer := time.NewTimer(5 * time.Second)
	defer shutdownTimer.Stop()
	<-shutdownTimer.C

	log.Info("IntelliMaint agent shutdown complete")
}

// refreshLoop calls refresh on a fixed interval until ctx is cancelled,
// logging failures without stopping the loop — the cache simply keeps
// serving its last-known-good snapshot.
func refreshLoop(ctx context.Context, interval time.Duration, log *zap.Logger, name string, refresh func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresh(ctx); err != nil {
				log.Warn("cache refresh failed, retaining previous snapshot", zap.String("cache", name), zap.Error(err))
			}
		}
	}
}

// alarmDeleter adapts AlarmStore.DeleteClosedBefore to retention.Deleter
// under the cleanup sweep's generic name, since AlarmStore's own method
// name documents the closed-only guard DeleteBefore can't express.
type alarmDeleter struct {
	*store.AlarmStore
}

func (a alarmDeleter) DeleteBefore(ctx context.Context, cutoffTs int64) (int64, error) {
	return a.DeleteClosedBefore(ctx, cutoffTs)
}
