// Package store implements the telemetry time-series store: idempotent
// batch append, keyset-paginated query, interval aggregation, and
// retention cleanup, backed by Postgres via pgx.
package store

import (
	"context"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// SortOrder is the requested ordering for a HistoryQuery.
type SortOrder int

const (
	SortAsc SortOrder = iota
	SortDesc
)

// PageToken is a keyset pagination cursor over (ts, seq).
type PageToken struct {
	LastTs  int64
	LastSeq int64
}

// HistoryQuery selects a window of telemetry for one device/tag.
type HistoryQuery struct {
	DeviceID string
	TagID    string // optional; empty means all tags for the device
	StartTs  int64
	EndTs    int64
	Sort     SortOrder
	Limit    int
	After    *PageToken
	Filter   func(model.TelemetryPoint) bool
}

// PagedResult is the keyset-paginated response to a HistoryQuery.
type PagedResult struct {
	Items      []model.TelemetryPoint
	NextToken  *PageToken
	HasMore    bool
	TotalCount int64
}

// AggregateFunc names a supported bucket aggregation.
type AggregateFunc int

const (
	AggAvg AggregateFunc = iota
	AggMin
	AggMax
	AggSum
	AggCount
	AggFirst
	AggLast
)

// AggregateBucket is one time-bucketed aggregation result.
type AggregateBucket struct {
	BucketTs int64
	Value    float64
	Count    int64
}

// Stats summarizes the telemetry store's current state.
type Stats struct {
	RowCount    int64
	OldestTs    int64
	NewestTs    int64
	DeviceCount int64
}

// TelemetryStore is the persistence interface for telemetry points. All
// retention-capable stores additionally implement DeleteBefore, per the
// uniform retention capability design note (replacing reflection-based
// dispatch).
type TelemetryStore interface {
	AppendBatch(ctx context.Context, points []model.TelemetryPoint) (stored int, err error)
	Query(ctx context.Context, q HistoryQuery) (PagedResult, error)
	GetLatest(ctx context.Context, deviceID, tagID string) (model.TelemetryPoint, bool, error)
	Aggregate(ctx context.Context, deviceID, tagID string, start, end, intervalMs int64, fn AggregateFunc) ([]AggregateBucket, error)
	DeleteBefore(ctx context.Context, cutoffTs int64) (deleted int64, err error)
	GetStats(ctx context.Context) (Stats, error)
}

// FormatPageToken renders a PageToken in its wire form "{lastTs}_{lastSeq}".
func FormatPageToken(t PageToken) string {
	return formatToken(t.LastTs, t.LastSeq)
}

// ParsePageToken parses the wire form produced by FormatPageToken. Satisfies
// Parse(Format(token)) = token.
func ParsePageToken(s string) (PageToken, error) {
	return parseToken(s)
}
