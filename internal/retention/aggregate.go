package retention

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// minuteBucketMs and hourBucketMs are the two continuous aggregations
// this worker maintains.
const (
	minuteBucketMs = 60_000
	hourBucketMs   = 3_600_000
)

// AggregationWorker maintains the telemetry_1m and telemetry_1h
// continuous aggregations, persisting progress in an AggregateStateStore
// so a restart resumes rather than reprocessing or skipping rows.
type AggregationWorker struct {
	pool     *pgxpool.Pool
	log      *zap.Logger
	state    AggregateStateStore
	interval time.Duration
}

func NewAggregationWorker(pool *pgxpool.Pool, log *zap.Logger, state AggregateStateStore, interval time.Duration) *AggregationWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AggregationWorker{pool: pool, log: log, state: state, interval: interval}
}

// RunOnce folds fully-elapsed buckets into telemetry_1m (from raw
// telemetry) and telemetry_1h (from telemetry_1m), then advances each
// aggregation's checkpoint.
func (w *AggregationWorker) RunOnce(ctx context.Context, now int64) error {
	if err := w.rollup(ctx, "telemetry_1m", "telemetry", minuteBucketMs, now, minuteRollupSQL); err != nil {
		return err
	}
	if err := w.rollup(ctx, "telemetry_1h", "telemetry_1m", hourBucketMs, now, hourRollupSQL); err != nil {
		return err
	}
	return nil
}

func (w *AggregationWorker) rollup(ctx context.Context, tableName, sourceTable string, bucketMs, now int64, sql string) error {
	lastProcessed, err := w.state.GetState(ctx, tableName)
	if err != nil {
		return err
	}
	cutoff := completedBucketCutoff(now, bucketMs)
	if cutoff <= lastProcessed {
		return nil // nothing new to fold in yet
	}

	tag, err := w.pool.Exec(ctx, sql, lastProcessed, cutoff)
	if err != nil {
		return err
	}
	if err := w.state.SetState(ctx, tableName, cutoff); err != nil {
		return err
	}
	w.log.Debug("continuous aggregation advanced",
		zap.String("table", tableName),
		zap.String("source", sourceTable),
		zap.Int64("from", lastProcessed),
		zap.Int64("to", cutoff),
		zap.Int64("rows_upserted", tag.RowsAffected()),
	)
	return nil
}

// Run loops RunOnce every w.interval until ctx is cancelled.
func (w *AggregationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			if err := w.RunOnce(ctx, t.UnixMilli()); err != nil {
				w.log.Error("continuous aggregation run failed", zap.Error(err))
			}
		}
	}
}

// minuteRollupSQL folds raw numeric telemetry in [$1,$2) into per-minute
// buckets. ON CONFLICT makes the fold idempotent across retried runs.
const minuteRollupSQL = `
INSERT INTO telemetry_1m (device_id, tag_id, bucket_ts, min_value, max_value, avg_value, first_value, last_value, sample_count)
SELECT
	device_id, tag_id, (ts / 60000) * 60000 AS bucket_ts,
	MIN(num_value), MAX(num_value), AVG(num_value),
	(array_agg(num_value ORDER BY ts ASC, seq ASC))[1],
	(array_agg(num_value ORDER BY ts DESC, seq DESC))[1],
	COUNT(*)
FROM telemetry
WHERE ts >= $1 AND ts < $2 AND num_value IS NOT NULL
GROUP BY device_id, tag_id, bucket_ts
ON CONFLICT (device_id, tag_id, bucket_ts) DO UPDATE SET
	min_value = EXCLUDED.min_value, max_value = EXCLUDED.max_value, avg_value = EXCLUDED.avg_value,
	first_value = EXCLUDED.first_value, last_value = EXCLUDED.last_value, sample_count = EXCLUDED.sample_count`

// hourRollupSQL folds telemetry_1m buckets in [$1,$2) into per-hour
// buckets, re-deriving avg as a count-weighted mean of the minute
// averages.
const hourRollupSQL = `
INSERT INTO telemetry_1h (device_id, tag_id, bucket_ts, min_value, max_value, avg_value, first_value, last_value, sample_count)
SELECT
	device_id, tag_id, (bucket_ts / 3600000) * 3600000 AS hour_bucket_ts,
	MIN(min_value), MAX(max_value), SUM(avg_value * sample_count) / NULLIF(SUM(sample_count), 0),
	(array_agg(first_value ORDER BY bucket_ts ASC))[1],
	(array_agg(last_value ORDER BY bucket_ts DESC))[1],
	SUM(sample_count)
FROM telemetry_1m
WHERE bucket_ts >= $1 AND bucket_ts < $2
GROUP BY device_id, tag_id, hour_bucket_ts
ON CONFLICT (device_id, tag_id, bucket_ts) DO UPDATE SET
	min_value = EXCLUDED.min_value, max_value = EXCLUDED.max_value, avg_value = EXCLUDED.avg_value,
	first_value = EXCLUDED.first_value, last_value = EXCLUDED.last_value, sample_count = EXCLUDED.sample_count`
