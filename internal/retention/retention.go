// Package retention maintains the telemetry store's continuous
// 1-minute/1-hour rollups and enforces per-table TTL cleanup, replacing
// the ad-hoc reflection-based "does this repository implement
// DeleteBeforeAsync" dispatch with the uniform DeleteBefore capability
// every retention-capable store exposes.
package retention

import "context"

const dayMs = 24 * 60 * 60 * 1000

// Deleter is the minimal retention capability a store must expose.
// internal/store's TelemetryStore satisfies this structurally, as does
// any alarm/audit/snapshot repository with a DeleteBefore method.
type Deleter interface {
	DeleteBefore(ctx context.Context, cutoffTs int64) (deleted int64, err error)
}

// AggregateStateStore persists the resumability checkpoint for one
// continuous aggregation ("telemetry_1m", "telemetry_1h", ...): the
// timestamp up to which source rows have already been folded into the
// aggregate.
type AggregateStateStore interface {
	GetState(ctx context.Context, tableName string) (lastProcessedTs int64, err error)
	SetState(ctx context.Context, tableName string, lastProcessedTs int64) error
}

// Target is one named, independently-TTL'd store to sweep during a
// cleanup run (alarms, audit log, health snapshots, ...).
type Target struct {
	Name     string
	Store    Deleter
	CutoffTs int64
}

// guardedCutoff never advances past upTo: the boundary up to which
// source data has already been aggregated downstream. This is the
// "never delete not-yet-aggregated data" invariant.
func guardedCutoff(wantCutoff, upTo int64) int64 {
	if wantCutoff > upTo {
		return upTo
	}
	return wantCutoff
}

// completedBucketCutoff returns the start of the latest bucket that has
// fully elapsed as of now, so a continuous aggregation never rolls up a
// bucket that could still receive late-arriving points.
func completedBucketCutoff(now, bucketMs int64) int64 {
	if bucketMs <= 0 {
		return now
	}
	return (now / bucketMs) * bucketMs
}

// shouldVacuum reports whether a cleanup run's total deletions warrant
// triggering the store-maintenance hook.
func shouldVacuum(totalDeleted, threshold int64) bool {
	if threshold <= 0 {
		threshold = 10_000
	}
	return totalDeleted > threshold
}
