// Package collection implements the condition-driven collection rule
// engine: a single ticking worker that evaluates start/stop Condition
// trees against the latest tag snapshot and drives one Idle→Collecting→
// PostBuffer→Idle state machine per rule.
package collection

import (
	"math"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

const eqTolerance = 1e-4

// TagKey identifies one (device, tag) pair in a Snapshot.
type TagKey struct {
	DeviceID string
	TagID    string
}

// TagSample is the latest observed value for a tag, as of Ts.
type TagSample struct {
	Value float64
	Ts    int64
}

// Snapshot is the "(device,tag) → latest numeric value + ts" view the
// engine refreshes each tick, per spec.md §4.3 step 2.
type Snapshot map[TagKey]TagSample

// splitDuration separates a Duration leaf from an AND-combined condition
// tree, since duration items are "accounted by the containing state
// machine, not the evaluator." Returns the effective boolean predicate
// (with the Duration leaf removed) and the required hold duration in
// milliseconds (0 if none is present).
func splitDuration(cond model.Condition) (model.Condition, int64) {
	if cond.Kind != model.CondKindAnd {
		return cond, 0
	}
	var predicateItems []model.Condition
	var durationMs int64
	for _, item := range cond.Items {
		if item.Kind == model.CondKindDuration {
			durationMs = int64(item.Seconds * 1000)
			continue
		}
		predicateItems = append(predicateItems, item)
	}
	if len(predicateItems) == 1 {
		return predicateItems[0], durationMs
	}
	return model.And(predicateItems...), durationMs
}

// evalCondition evaluates a Condition tree (with any Duration leaves
// already stripped by splitDuration) against a device's tag snapshot.
// Missing data evaluates to false; an empty item list evaluates to
// false regardless of logic operator.
func evalCondition(cond model.Condition, deviceID string, snap Snapshot) bool {
	switch cond.Kind {
	case model.CondKindTagPred:
		sample, ok := snap[TagKey{DeviceID: deviceID, TagID: cond.TagID}]
		if !ok {
			return false
		}
		return compare(sample.Value, cond.Op, cond.Value)

	case model.CondKindAnd:
		if len(cond.Items) == 0 {
			return false
		}
		for _, item := range cond.Items {
			if !evalCondition(item, deviceID, snap) {
				return false
			}
		}
		return true

	case model.CondKindOr:
		if len(cond.Items) == 0 {
			return false
		}
		for _, item := range cond.Items {
			if evalCondition(item, deviceID, snap) {
				return true
			}
		}
		return false

	case model.CondKindDuration:
		// A bare Duration leaf outside an AND wrapper has no predicate to
		// gate; treat as vacuously satisfied so callers that forgot to pair
		// it don't deadlock the state machine.
		return true

	default:
		return false
	}
}

func compare(actual float64, op model.CompareOp, threshold float64) bool {
	switch op {
	case model.OpGT:
		return actual > threshold
	case model.OpGTE:
		return actual >= threshold
	case model.OpLT:
		return actual < threshold
	case model.OpLTE:
		return actual <= threshold
	case model.OpEQ:
		return math.Abs(actual-threshold) < eqTolerance
	case model.OpNE:
		return math.Abs(actual-threshold) >= eqTolerance
	default:
		return false
	}
}
