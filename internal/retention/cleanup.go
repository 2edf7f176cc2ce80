package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/config"
)

// CleanupPlan is the set of cutoffs a cleanup run will enforce, computed
// up front so the guard logic (never delete unaggregated data) is pure
// and independently testable from the actual deletes.
type CleanupPlan struct {
	RawCutoffTs    int64
	MinuteCutoffTs int64
	HourCutoffTs   int64
}

// planCleanup computes the guarded cutoffs for the raw/minute/hour
// tiers. aggregatedUpTo1m is how far the minute rollup has progressed
// (raw data before it is safe to delete); aggregatedUpTo1h is how far
// the hour rollup has progressed (minute buckets before it are safe to
// delete). The hour tier is terminal and carries no downstream guard.
func planCleanup(now int64, cfg config.DataCleanupConfig, aggregatedUpTo1m, aggregatedUpTo1h int64) CleanupPlan {
	return CleanupPlan{
		RawCutoffTs:    guardedCutoff(now-cfg.TelemetryRetentionDays*dayMs, aggregatedUpTo1m),
		MinuteCutoffTs: guardedCutoff(now-cfg.Telemetry1mRetentionDays*dayMs, aggregatedUpTo1h),
		HourCutoffTs:   now - cfg.Telemetry1hRetentionDays*dayMs,
	}
}

// CleanupWorker periodically enforces retention windows across the raw,
// minute-bucket, and hour-bucket telemetry tiers plus any additional
// named targets (alarms, audit log, snapshots), and triggers a
// store-maintenance hook once a run's total deletions cross
// cfg.VacuumThreshold.
type CleanupWorker struct {
	cfg        config.DataCleanupConfig
	log        *zap.Logger
	state      AggregateStateStore
	raw        Deleter
	minute     Deleter
	hour       Deleter
	vacuumHook func(ctx context.Context) error
}

func NewCleanupWorker(cfg config.DataCleanupConfig, log *zap.Logger, state AggregateStateStore, raw, minute, hour Deleter, vacuumHook func(ctx context.Context) error) *CleanupWorker {
	return &CleanupWorker{cfg: cfg, log: log, state: state, raw: raw, minute: minute, hour: hour, vacuumHook: vacuumHook}
}

// Result summarizes one cleanup run.
type Result struct {
	Plan          CleanupPlan
	DeletedRaw    int64
	DeletedMinute int64
	DeletedHour   int64
	DeletedExtra  map[string]int64
	TotalDeleted  int64
	Vacuumed      bool
}

// RunOnce executes a single cleanup pass against the three telemetry
// tiers plus extras, and runs the vacuum hook if the total deletion
// count warrants it.
func (w *CleanupWorker) RunOnce(ctx context.Context, now int64, extras []Target) (Result, error) {
	upTo1m, err := w.state.GetState(ctx, "telemetry_1m")
	if err != nil {
		return Result{}, err
	}
	upTo1h, err := w.state.GetState(ctx, "telemetry_1h")
	if err != nil {
		return Result{}, err
	}
	plan := planCleanup(now, w.cfg, upTo1m, upTo1h)

	res := Result{Plan: plan, DeletedExtra: make(map[string]int64)}

	if w.raw != nil {
		n, err := w.raw.DeleteBefore(ctx, plan.RawCutoffTs)
		if err != nil {
			return Result{}, err
		}
		res.DeletedRaw = n
	}
	if w.minute != nil {
		n, err := w.minute.DeleteBefore(ctx, plan.MinuteCutoffTs)
		if err != nil {
			return Result{}, err
		}
		res.DeletedMinute = n
	}
	if w.hour != nil {
		n, err := w.hour.DeleteBefore(ctx, plan.HourCutoffTs)
		if err != nil {
			return Result{}, err
		}
		res.DeletedHour = n
	}

	total := res.DeletedRaw + res.DeletedMinute + res.DeletedHour
	for _, t := range extras {
		n, err := t.Store.DeleteBefore(ctx, t.CutoffTs)
		if err != nil {
			return Result{}, err
		}
		res.DeletedExtra[t.Name] = n
		total += n
	}
	res.TotalDeleted = total

	if shouldVacuum(total, w.cfg.VacuumThreshold) {
		if w.vacuumHook != nil {
			if err := w.vacuumHook(ctx); err != nil {
				w.log.Warn("retention vacuum hook failed", zap.Error(err))
			} else {
				res.Vacuumed = true
			}
		}
	}

	w.log.Info("retention cleanup run complete",
		zap.Int64("deleted_raw", res.DeletedRaw),
		zap.Int64("deleted_minute", res.DeletedMinute),
		zap.Int64("deleted_hour", res.DeletedHour),
		zap.Int64("deleted_total", res.TotalDeleted),
		zap.Bool("vacuumed", res.Vacuumed),
	)
	return res, nil
}

// Run loops RunOnce every cfg.CleanupIntervalHours until ctx is
// cancelled. extrasFn is called fresh each tick so callers can compute
// the alarm/audit/snapshot cutoffs against the then-current time.
func (w *CleanupWorker) Run(ctx context.Context, extrasFn func(now int64) []Target) error {
	interval := time.Duration(w.cfg.CleanupIntervalHours) * time.Hour
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			now := t.UnixMilli()
			var extras []Target
			if extrasFn != nil {
				extras = extrasFn(now)
			}
			if _, err := w.RunOnce(ctx, now, extras); err != nil {
				w.log.Error("retention cleanup run failed", zap.Error(err))
			}
		}
	}
}
