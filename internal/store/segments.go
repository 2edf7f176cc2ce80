package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// SegmentStore is a Postgres-backed collection.SegmentSink.
type SegmentStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
}

func NewSegmentStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration) *SegmentStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &SegmentStore{pool: pool, log: log, queryTimeout: queryTimeout}
}

func (s *SegmentStore) SaveSegment(ctx context.Context, seg model.CollectionSegment) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	metaRaw, err := json.Marshal(seg.Metadata)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO collection_segment (id, rule_id, device_id, start_ts, end_ts, status, data_point_count, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			end_ts=EXCLUDED.end_ts, status=EXCLUDED.status,
			data_point_count=EXCLUDED.data_point_count, metadata=EXCLUDED.metadata`,
		seg.ID, seg.RuleID, seg.DeviceID, seg.StartTs, seg.EndTs, int(seg.Status), seg.DataPointCount, metaRaw,
	)
	return classifyErr(err, time.Since(start))
}
