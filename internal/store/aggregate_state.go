package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AggregateStateStore is a Postgres-backed retention.AggregateStateStore,
// tracking each continuous aggregation's resumability checkpoint in a
// single small table keyed by table_name.
type AggregateStateStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
}

func NewAggregateStateStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration) *AggregateStateStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &AggregateStateStore{pool: pool, log: log, queryTimeout: queryTimeout}
}

func (s *AggregateStateStore) GetState(ctx context.Context, tableName string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var ts int64
	err := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM aggregate_state WHERE table_name = $1`, tableName).Scan(&ts)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, classifyErr(err, 0)
	}
	return ts, nil
}

func (s *AggregateStateStore) SetState(ctx context.Context, tableName string, lastProcessedTs int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aggregate_state (table_name, last_processed_ts) VALUES ($1,$2)
		ON CONFLICT (table_name) DO UPDATE SET last_processed_ts = EXCLUDED.last_processed_ts`,
		tableName, lastProcessedTs)
	return classifyErr(err, time.Since(start))
}
