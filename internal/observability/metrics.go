// Package observability — metrics.go
//
// Prometheus metrics for the IntelliMaint agent.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: intellimaint_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - Device/tag identifiers are NOT used as labels (unbounded cardinality).
//   - Per-device/tag metrics are aggregated before recording.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for IntelliMaint.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Edge ingestion ───────────────────────────────────────────────────────

	// PointsObservedTotal counts raw points presented to the edge filter.
	PointsObservedTotal prometheus.Counter

	// PointsFilteredTotal counts points suppressed by the deadband filter.
	PointsFilteredTotal prometheus.Counter

	// PointsDroppedTotal is incremented once per batch the forward buffer
	// evicts (oldest first) when its on-disk size exceeds MaxStoreSizeMB,
	// regardless of how many points the batch held. There is no in-memory
	// fallback buffer. Labels: reason (disk_exhausted).
	PointsDroppedTotal *prometheus.CounterVec

	// SendQueueDepth is the current depth of the bounded send channel.
	SendQueueDepth prometheus.Gauge

	// ─── Ingest server ────────────────────────────────────────────────────────

	// PointsIngestedTotal counts points persisted by the server-side
	// POST /api/telemetry/batch handler.
	PointsIngestedTotal prometheus.Counter

	// ─── Store-and-forward ────────────────────────────────────────────────────

	// PendingPoints is the number of points currently spilled to the rolling
	// local buffer awaiting replay.
	PendingPoints prometheus.Gauge

	// StoredMB is the current size in MB of the rolling local buffer.
	StoredMB prometheus.Gauge

	// SentTotal counts points successfully delivered to the ingest endpoint.
	SentTotal prometheus.Counter

	// ConnectionStateTransitionsTotal counts Online/Offline transitions.
	// Labels: from_state, to_state
	ConnectionStateTransitionsTotal *prometheus.CounterVec

	// ─── Alarm evaluator ──────────────────────────────────────────────────────

	// AlarmsFiredTotal counts raw alarm firings. Labels: severity
	AlarmsFiredTotal *prometheus.CounterVec

	// OpenAlarmGroups is the current number of open alarm groups.
	OpenAlarmGroups prometheus.Gauge

	// ─── Collection engine ────────────────────────────────────────────────────

	// ActiveSegments is the current number of Collecting/PostBuffer segments.
	ActiveSegments prometheus.Gauge

	// SegmentsCompletedTotal counts finalized segments. Labels: status
	SegmentsCompletedTotal *prometheus.CounterVec

	// ─── Cycle analyzer ───────────────────────────────────────────────────────

	// CycleAnomalyScoreHistogram records the distribution of cycle anomaly
	// scores.
	CycleAnomalyScoreHistogram prometheus.Histogram

	// CyclesAnalyzedTotal counts cycles scored.
	CyclesAnalyzedTotal prometheus.Counter

	// ─── Motor baseline learner ───────────────────────────────────────────────

	// BaselineUpdatesTotal counts accepted baseline learning updates.
	BaselineUpdatesTotal prometheus.Counter

	// BaselineRejectedSamplesTotal counts samples rejected by the anomaly
	// filter before baseline incorporation.
	BaselineRejectedSamplesTotal prometheus.Counter

	// ─── Health engine ─────────────────────────────────────────────────────────

	// HealthIndexHistogram records the distribution of computed health
	// indices.
	HealthIndexHistogram prometheus.Histogram

	// DeviceHealthLevelGauge reflects the most recent health level per
	// device, aggregated as a count by level. Labels: level
	DeviceHealthLevelGauge *prometheus.GaugeVec

	// ─── Storage ───────────────────────────────────────────────────────────────

	// StorageWriteLatency records telemetry store write latency.
	StorageWriteLatency prometheus.Histogram

	// LedgerEntries is the current number of audit ledger entries.
	LedgerEntries prometheus.Gauge

	// RateLimitRejectionsTotal counts operations refused by the ingest rate
	// limiter.
	RateLimitRejectionsTotal prometheus.Counter

	// ─── Retention ─────────────────────────────────────────────────────────────

	// RetentionRowsDeletedTotal counts rows deleted by the cleanup worker.
	// Labels: table
	RetentionRowsDeletedTotal *prometheus.CounterVec

	// ─── Agent ──────────────────────────────────────────────────────────────

	// AgentUptimeSeconds is the number of seconds since agent start.
	AgentUptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all IntelliMaint Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		PointsObservedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "edge",
			Name:      "points_observed_total",
			Help:      "Total raw telemetry points presented to the edge filter.",
		}),

		PointsFilteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "edge",
			Name:      "points_filtered_total",
			Help:      "Total points suppressed by the deadband/outlier filter.",
		}),

		PointsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "edge",
			Name:      "points_dropped_total",
			Help:      "Total batches evicted from the forward buffer over its size cap, by reason.",
		}, []string{"reason"}),

		SendQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intellimaint",
			Subsystem: "edge",
			Name:      "send_queue_depth",
			Help:      "Current depth of the bounded send channel.",
		}),

		PointsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "ingest",
			Name:      "points_ingested_total",
			Help:      "Total points persisted by the server-side ingest handler.",
		}),

		PendingPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intellimaint",
			Subsystem: "forward",
			Name:      "pending_points",
			Help:      "Number of points currently spilled to the rolling local buffer.",
		}),

		StoredMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intellimaint",
			Subsystem: "forward",
			Name:      "stored_mb",
			Help:      "Current size in MB of the rolling local buffer.",
		}),

		SentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "forward",
			Name:      "sent_total",
			Help:      "Total points successfully delivered to the ingest endpoint.",
		}),

		ConnectionStateTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "forward",
			Name:      "connection_state_transitions_total",
			Help:      "Total Online/Offline state transitions, by from_state and to_state.",
		}, []string{"from_state", "to_state"}),

		AlarmsFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "alarm",
			Name:      "fired_total",
			Help:      "Total raw alarm firings, by severity.",
		}, []string{"severity"}),

		OpenAlarmGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intellimaint",
			Subsystem: "alarm",
			Name:      "open_groups",
			Help:      "Current number of open alarm groups.",
		}),

		ActiveSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intellimaint",
			Subsystem: "collection",
			Name:      "active_segments",
			Help:      "Current number of Collecting/PostBuffer segments.",
		}),

		SegmentsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "collection",
			Name:      "segments_completed_total",
			Help:      "Total finalized segments, by status.",
		}, []string{"status"}),

		CycleAnomalyScoreHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "intellimaint",
			Subsystem: "cycle",
			Name:      "anomaly_score",
			Help:      "Distribution of cycle anomaly scores (0-100).",
			Buckets:   []float64{5, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		CyclesAnalyzedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "cycle",
			Name:      "analyzed_total",
			Help:      "Total cycles scored.",
		}),

		BaselineUpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "motor",
			Name:      "baseline_updates_total",
			Help:      "Total accepted baseline learning updates.",
		}),

		BaselineRejectedSamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "motor",
			Name:      "baseline_rejected_samples_total",
			Help:      "Total samples rejected by the anomaly filter before baseline incorporation.",
		}),

		HealthIndexHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "intellimaint",
			Subsystem: "health",
			Name:      "index",
			Help:      "Distribution of computed device health indices (0-100).",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		DeviceHealthLevelGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "intellimaint",
			Subsystem: "health",
			Name:      "devices_by_level",
			Help:      "Current count of devices at each health level.",
		}, []string{"level"}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "intellimaint",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "Telemetry store write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		LedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intellimaint",
			Subsystem: "storage",
			Name:      "ledger_entries",
			Help:      "Current number of audit ledger entries in BoltDB.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "storage",
			Name:      "rate_limit_rejections_total",
			Help:      "Total operations refused by the ingest rate limiter.",
		}),

		RetentionRowsDeletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intellimaint",
			Subsystem: "retention",
			Name:      "rows_deleted_total",
			Help:      "Total rows deleted by the cleanup worker, by table.",
		}, []string{"table"}),

		AgentUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intellimaint",
			Subsystem: "agent",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the agent started.",
		}),
	}

	reg.MustRegister(
		m.PointsObservedTotal,
		m.PointsFilteredTotal,
		m.PointsDroppedTotal,
		m.SendQueueDepth,
		m.PointsIngestedTotal,
		m.PendingPoints,
		m.StoredMB,
		m.SentTotal,
		m.ConnectionStateTransitionsTotal,
		m.AlarmsFiredTotal,
		m.OpenAlarmGroups,
		m.ActiveSegments,
		m.SegmentsCompletedTotal,
		m.CycleAnomalyScoreHistogram,
		m.CyclesAnalyzedTotal,
		m.BaselineUpdatesTotal,
		m.BaselineRejectedSamplesTotal,
		m.HealthIndexHistogram,
		m.DeviceHealthLevelGauge,
		m.StorageWriteLatency,
		m.LedgerEntries,
		m.RateLimitRejectionsTotal,
		m.RetentionRowsDeletedTotal,
		m.AgentUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.AgentUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
