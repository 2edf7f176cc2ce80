package store

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// BaselineStore is a Postgres-backed persistence layer for per-device-tag
// learned baselines, keyed the same way health.BaselineSource looks
// them up (device_id, tag_id).
type BaselineStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
}

func NewBaselineStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration) *BaselineStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &BaselineStore{pool: pool, log: log, queryTimeout: queryTimeout}
}

// Upsert persists one device/tag's baseline, called whenever the
// learner that maintains it produces a fresh snapshot.
func (s *BaselineStore) Upsert(ctx context.Context, b model.DeviceBaseline) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO device_baseline (device_id, tag_id, mean, std, min, max, p05, p95, sample_count, learning_hours)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (device_id, tag_id) DO UPDATE SET
			mean=EXCLUDED.mean, std=EXCLUDED.std, min=EXCLUDED.min, max=EXCLUDED.max,
			p05=EXCLUDED.p05, p95=EXCLUDED.p95, sample_count=EXCLUDED.sample_count, learning_hours=EXCLUDED.learning_hours`,
		b.DeviceID, b.TagID, b.Mean, b.Std, b.Min, b.Max, b.P05, b.P95, b.SampleCount, b.LearningHours,
	)
	return classifyErr(err, time.Since(start))
}

// All loads every persisted baseline, used to (re)populate a BaselineCache.
func (s *BaselineStore) All(ctx context.Context) ([]model.DeviceBaseline, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT device_id, tag_id, mean, std, min, max, p05, p95, sample_count, learning_hours FROM device_baseline`)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []model.DeviceBaseline
	for rows.Next() {
		var b model.DeviceBaseline
		if err := rows.Scan(&b.DeviceID, &b.TagID, &b.Mean, &b.Std, &b.Min, &b.Max, &b.P05, &b.P95, &b.SampleCount, &b.LearningHours); err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, b)
	}
	return out, classifyErr(rows.Err(), 0)
}

// DeviceTags lists the tags recorded for a device in the device_tag
// catalog table. No code in this repository writes device_tag rows;
// BaselineCache.DeviceTags derives its tag list from device_baseline.
func (s *BaselineStore) DeviceTags(ctx context.Context, deviceID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `SELECT tag_id FROM device_tag WHERE device_id = $1`, deviceID)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tagID string
		if err := rows.Scan(&tagID); err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, tagID)
	}
	return out, classifyErr(rows.Err(), 0)
}

// BaselineCache is a periodically-refreshed in-memory view over
// BaselineStore, satisfying health.BaselineSource's synchronous,
// no-error lookup signature without hitting Postgres on every tag
// the health engine scores.
type BaselineCache struct {
	store *BaselineStore
	log   *zap.Logger

	mu        sync.RWMutex
	baselines map[string]model.DeviceBaseline
	tags      map[string][]string
}

func NewBaselineCache(store *BaselineStore, log *zap.Logger) *BaselineCache {
	return &BaselineCache{
		store:     store,
		log:       log,
		baselines: make(map[string]model.DeviceBaseline),
		tags:      make(map[string][]string),
	}
}

func baselineKey(deviceID, tagID string) string {
	return deviceID + "|" + tagID
}

// Refresh reloads every baseline from Postgres. Call periodically (or
// after Upsert) from a background goroutine.
func (c *BaselineCache) Refresh(ctx context.Context) error {
	all, err := c.store.All(ctx)
	if err != nil {
		return err
	}
	byDevice := make(map[string][]string)
	next := make(map[string]model.DeviceBaseline, len(all))
	for _, b := range all {
		next[baselineKey(b.DeviceID, b.TagID)] = b
		byDevice[b.DeviceID] = append(byDevice[b.DeviceID], b.TagID)
	}

	c.mu.Lock()
	c.baselines = next
	c.tags = byDevice
	c.mu.Unlock()
	return nil
}

// Baseline implements health.BaselineSource.
func (c *BaselineCache) Baseline(deviceID, tagID string) (model.DeviceBaseline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.baselines[baselineKey(deviceID, tagID)]
	return b, ok
}

// DeviceTags implements the DeviceTags half of health.RuleSource from
// the same cached snapshot the baseline lookups use.
func (c *BaselineCache) DeviceTags(deviceID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.tags[deviceID]...)
}
