package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TableDeleter is a generic retention.Deleter over one table/timestamp
// column pair, used for the telemetry_1m/telemetry_1h continuous
// aggregations that PostgresStore.DeleteBefore doesn't cover. The
// cleanup worker's extras (alarm_record, audit ledger) go through their
// own stores' delete methods instead.
type TableDeleter struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
	table        string
	tsColumn     string
}

// NewTableDeleter builds a Deleter for table, deleting rows whose
// tsColumn is strictly less than the cutoff it's given. table and
// tsColumn come from call sites inside this package only, never from
// request input, so building the DELETE via fmt.Sprintf here carries
// no injection risk.
func NewTableDeleter(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration, table, tsColumn string) *TableDeleter {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &TableDeleter{pool: pool, log: log, queryTimeout: queryTimeout, table: table, tsColumn: tsColumn}
}

func (d *TableDeleter) DeleteBefore(ctx context.Context, cutoffTs int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()
	start := time.Now()
	tag, err := d.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, d.table, d.tsColumn), cutoffTs)
	if err != nil {
		return 0, classifyErr(err, time.Since(start))
	}
	return tag.RowsAffected(), nil
}
