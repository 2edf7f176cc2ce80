package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/errs"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/ratelimit"
)

// slowQueryThreshold classifies a successful-but-slow query as DB_SLOW
// rather than a hard failure, per spec.md §4.1.
const slowQueryThreshold = 2 * time.Second

// PostgresStore is a TelemetryStore backed by a monthly-partitioned
// Postgres "telemetry" table, accessed through a pgxpool.Pool.
type PostgresStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
	limiter      *ratelimit.Bucket
}

// NewPostgresStore builds a PostgresStore from an existing pool. Callers
// construct the pool (pgxpool.New) so connection-string parsing and pool
// tuning stay in one place at startup. limiter may be nil, in which case
// AppendBatch never throttles.
func NewPostgresStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration, limiter *ratelimit.Bucket) *PostgresStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &PostgresStore{pool: pool, log: log, queryTimeout: queryTimeout, limiter: limiter}
}

func classifyErr(err error, elapsed time.Duration) error {
	if err == nil {
		if elapsed > slowQueryThreshold {
			return errs.New(errs.CodeDBSlow, "query took %s", elapsed)
		}
		return nil
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return err
	}
	return errs.New(errs.CodeDBUnavailable, "%v", err)
}

// AppendBatch idempotently inserts points, returning the count actually
// stored (primary key collisions are silent, per spec.md §4.1).
func (s *PostgresStore) AppendBatch(ctx context.Context, points []model.TelemetryPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	if s.limiter != nil {
		if err := s.limiter.Allow(ratelimit.OpAppendBatch); err != nil {
			return 0, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	batch := &pgx.Batch{}
	for _, p := range points {
		vt, numv, strv, bytev, dtv := encodeValue(p.Value)
		batch.Queue(
			`INSERT INTO telemetry
				(device_id, tag_id, ts, seq, value_type, num_value, str_value, byte_value, dt_value, quality, protocol, source)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			 ON CONFLICT (device_id, tag_id, ts, seq) DO NOTHING`,
			p.DeviceID, p.TagID, p.Ts, p.Seq, vt, numv, strv, bytev, dtv, p.Quality, p.Protocol, p.Source,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	stored := 0
	for range points {
		tag, err := br.Exec()
		if err != nil {
			return stored, classifyErr(err, time.Since(start))
		}
		stored += int(tag.RowsAffected())
	}
	if err := classifyErr(nil, time.Since(start)); err != nil {
		s.log.Warn("telemetry append slow", zap.Duration("elapsed", time.Since(start)))
	}
	return stored, nil
}

// Query performs keyset-paginated retrieval ordered strictly by (ts,seq).
func (s *PostgresStore) Query(ctx context.Context, q HistoryQuery) (PagedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	orderDir := "ASC"
	cmpOp := ">"
	if q.Sort == SortDesc {
		orderDir = "DESC"
		cmpOp = "<"
	}

	sqlStr := fmt.Sprintf(`
		SELECT device_id, tag_id, ts, seq, value_type, num_value, str_value, byte_value, dt_value, quality, protocol, source
		FROM telemetry
		WHERE device_id = $1 AND ts BETWEEN $2 AND $3`)
	args := []any{q.DeviceID, q.StartTs, q.EndTs}
	argN := 4
	if q.TagID != "" {
		sqlStr += fmt.Sprintf(" AND tag_id = $%d", argN)
		args = append(args, q.TagID)
		argN++
	}
	if q.After != nil {
		sqlStr += fmt.Sprintf(" AND (ts, seq) %s ($%d, $%d)", cmpOp, argN, argN+1)
		args = append(args, q.After.LastTs, q.After.LastSeq)
		argN += 2
	}
	sqlStr += fmt.Sprintf(" ORDER BY ts %s, seq %s LIMIT $%d", orderDir, orderDir, argN)
	args = append(args, limit+1) // overfetch-by-one

	start := time.Now()
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return PagedResult{}, classifyErr(err, time.Since(start))
	}
	defer rows.Close()

	var items []model.TelemetryPoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return PagedResult{}, classifyErr(err, time.Since(start))
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return PagedResult{}, classifyErr(err, time.Since(start))
	}

	result := PagedResult{Items: items}
	if len(items) > limit {
		last := items[limit-1]
		result.Items = items[:limit]
		result.HasMore = true
		result.NextToken = &PageToken{LastTs: last.Ts, LastSeq: last.Seq}
	}
	return result, nil
}

// GetLatest returns the most recent point for (deviceID, tagID).
func (s *PostgresStore) GetLatest(ctx context.Context, deviceID, tagID string) (model.TelemetryPoint, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT device_id, tag_id, ts, seq, value_type, num_value, str_value, byte_value, dt_value, quality, protocol, source
		FROM telemetry WHERE device_id=$1 AND tag_id=$2
		ORDER BY ts DESC, seq DESC LIMIT 1`, deviceID, tagID)
	p, err := scanPoint(row)
	if err == pgx.ErrNoRows {
		return model.TelemetryPoint{}, false, nil
	}
	if err != nil {
		return model.TelemetryPoint{}, false, classifyErr(err, time.Since(start))
	}
	return p, true, nil
}

// Aggregate buckets points by (ts DIV intervalMs) * intervalMs and applies
// fn over the bucket, resolving first/last by (ts, seq) ordering.
func (s *PostgresStore) Aggregate(ctx context.Context, deviceID, tagID string, start, end, intervalMs int64, fn AggregateFunc) ([]AggregateBucket, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	aggExpr, err := aggregateSQL(fn)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		SELECT (ts / $1) * $1 AS bucket_ts, %s AS value, COUNT(*) AS cnt
		FROM telemetry
		WHERE device_id=$2 AND tag_id=$3 AND ts BETWEEN $4 AND $5 AND num_value IS NOT NULL
		GROUP BY bucket_ts
		ORDER BY bucket_ts ASC`, aggExpr)

	t0 := time.Now()
	rows, err := s.pool.Query(ctx, q, intervalMs, deviceID, tagID, start, end)
	if err != nil {
		return nil, classifyErr(err, time.Since(t0))
	}
	defer rows.Close()

	var out []AggregateBucket
	for rows.Next() {
		var b AggregateBucket
		if err := rows.Scan(&b.BucketTs, &b.Value, &b.Count); err != nil {
			return nil, classifyErr(err, time.Since(t0))
		}
		out = append(out, b)
	}
	return out, classifyErr(rows.Err(), time.Since(t0))
}

func aggregateSQL(fn AggregateFunc) (string, error) {
	switch fn {
	case AggAvg:
		return "AVG(num_value)", nil
	case AggMin:
		return "MIN(num_value)", nil
	case AggMax:
		return "MAX(num_value)", nil
	case AggSum:
		return "SUM(num_value)", nil
	case AggCount:
		return "COUNT(num_value)", nil
	case AggFirst:
		return "(array_agg(num_value ORDER BY ts ASC, seq ASC))[1]", nil
	case AggLast:
		return "(array_agg(num_value ORDER BY ts DESC, seq DESC))[1]", nil
	default:
		return "", errs.New(errs.CodeValidation, "unknown aggregate func %d", fn)
	}
}

// DeleteBefore deletes raw telemetry strictly older than cutoffTs. Callers
// (internal/retention) are responsible for not deleting unaggregated
// rows; this method has no opinion beyond the cutoff it is given.
func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoffTs int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM telemetry WHERE ts < $1`, cutoffTs)
	if err != nil {
		return 0, classifyErr(err, time.Since(start))
	}
	return tag.RowsAffected(), nil
}

// GetStats summarizes the store.
func (s *PostgresStore) GetStats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(MIN(ts),0), COALESCE(MAX(ts),0), COUNT(DISTINCT device_id)
		FROM telemetry`)
	var st Stats
	if err := row.Scan(&st.RowCount, &st.OldestTs, &st.NewestTs, &st.DeviceCount); err != nil {
		return Stats{}, classifyErr(err, time.Since(start))
	}
	return st, nil
}

// scanner abstracts pgx.Row / pgx.Rows for scanPoint reuse.
type scanner interface {
	Scan(dest ...any) error
}

func scanPoint(r scanner) (model.TelemetryPoint, error) {
	var (
		p        model.TelemetryPoint
		vt       int
		numv     *float64
		strv     *string
		bytev    []byte
		dtv      *int64
	)
	if err := r.Scan(&p.DeviceID, &p.TagID, &p.Ts, &p.Seq, &vt, &numv, &strv, &bytev, &dtv, &p.Quality, &p.Protocol, &p.Source); err != nil {
		return model.TelemetryPoint{}, err
	}
	p.Value = decodeValue(model.ValueType(vt), numv, strv, bytev, dtv)
	return p, nil
}

// encodeValue maps a tagged-union Value onto the table's narrow physical
// columns: one numeric column (cast to float64, sufficient precision for
// every numeric ValueType this platform emits), one string column, one
// bytes column, one datetime column, and the discriminant itself.
func encodeValue(v model.Value) (valueType int, numv *float64, strv *string, bytev []byte, dtv *int64) {
	valueType = int(v.Type)
	switch v.Type {
	case model.ValueTypeBool:
		f := 0.0
		if v.Bool {
			f = 1.0
		}
		numv = &f
	case model.ValueTypeString:
		strv = &v.String
	case model.ValueTypeByteArray:
		bytev = v.ByteArray
	case model.ValueTypeDateTime:
		dtv = &v.DateTime
	default:
		if f, ok := v.AsFloat64(); ok {
			numv = &f
		}
	}
	return
}

func decodeValue(vt model.ValueType, numv *float64, strv *string, bytev []byte, dtv *int64) model.Value {
	switch vt {
	case model.ValueTypeBool:
		return model.BoolValue(numv != nil && *numv != 0)
	case model.ValueTypeString:
		if strv != nil {
			return model.StringValue(*strv)
		}
		return model.StringValue("")
	case model.ValueTypeByteArray:
		return model.BytesValue(bytev)
	case model.ValueTypeDateTime:
		if dtv != nil {
			return model.DateTimeValue(*dtv)
		}
		return model.DateTimeValue(0)
	case model.ValueTypeInt8, model.ValueTypeInt16, model.ValueTypeInt32, model.ValueTypeInt64,
		model.ValueTypeUInt8, model.ValueTypeUInt16, model.ValueTypeUInt32, model.ValueTypeUInt64,
		model.ValueTypeFloat32, model.ValueTypeFloat64:
		f := 0.0
		if numv != nil {
			f = *numv
		}
		return reconstructNumeric(vt, f)
	default:
		return model.Value{}
	}
}

func reconstructNumeric(vt model.ValueType, f float64) model.Value {
	switch vt {
	case model.ValueTypeInt8:
		return model.Int8Value(int8(f))
	case model.ValueTypeInt16:
		return model.Int16Value(int16(f))
	case model.ValueTypeInt32:
		return model.Int32Value(int32(f))
	case model.ValueTypeInt64:
		return model.Int64Value(int64(f))
	case model.ValueTypeUInt8:
		return model.UInt8Value(uint8(f))
	case model.ValueTypeUInt16:
		return model.UInt16Value(uint16(f))
	case model.ValueTypeUInt32:
		return model.UInt32Value(uint32(f))
	case model.ValueTypeUInt64:
		return model.UInt64Value(uint64(f))
	case model.ValueTypeFloat32:
		return model.Float32Value(float32(f))
	default:
		return model.Float64Value(f)
	}
}
