package collection

import (
	"sync"

	"github.com/google/uuid"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// engineState is the internal Idle/Collecting/PostBuffer phase. PostBuffer
// has no corresponding model.SegmentStatus value: the stored segment
// keeps reporting Collecting until PostBuffer elapses and it is
// finalized to Completed, matching spec.md's three-value segment status.
type engineState int

const (
	engineIdle engineState = iota
	engineCollecting
	enginePostBuffer
)

// ruleState is the per-rule state machine: one CollectionRule drives
// exactly one of these, never more than one Collecting segment at a time.
type ruleState struct {
	mu sync.Mutex

	rule model.CollectionRule

	phase   engineState
	segment *model.CollectionSegment

	stopPredicate   model.Condition
	stopDurationMs  int64
	stopConditionTs *int64 // nil when stop predicate isn't currently true

	postBufferEnteredTs int64
}

func newRuleState(rule model.CollectionRule) *ruleState {
	stopPred, stopDur := splitDuration(rule.StopCondition)
	return &ruleState{
		rule:           rule,
		phase:          engineIdle,
		stopPredicate:  stopPred,
		stopDurationMs: stopDur,
	}
}

// tick advances the state machine by one evaluation using the snapshot
// as of now (epoch millis). Returns a finalized segment if one completed
// this tick (nil otherwise), for callers to persist.
func (rs *ruleState) tick(now int64, snap Snapshot) *model.CollectionSegment {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	switch rs.phase {
	case engineIdle:
		startPred, _ := splitDuration(rs.rule.StartCondition)
		if evalCondition(startPred, rs.rule.DeviceID, snap) {
			preMs := int64(rs.rule.CollectionConfig.PreBufferSeconds * 1000)
			rs.segment = &model.CollectionSegment{
				ID:       uuid.NewString(),
				RuleID:   rs.rule.RuleID,
				DeviceID: rs.rule.DeviceID,
				StartTs:  now - preMs,
				Status:   model.SegmentStatusCollecting,
				Metadata: map[string]string{},
			}
			rs.rule.TriggerCount++
			rs.phase = engineCollecting
		}
		return nil

	case engineCollecting:
		if evalCondition(rs.stopPredicate, rs.rule.DeviceID, snap) {
			if rs.stopConditionTs == nil {
				ts := now
				rs.stopConditionTs = &ts
			} else if now-*rs.stopConditionTs >= rs.stopDurationMs {
				rs.phase = enginePostBuffer
				rs.postBufferEnteredTs = now
				rs.stopConditionTs = nil
			}
		} else {
			rs.stopConditionTs = nil
		}
		return nil

	case enginePostBuffer:
		postMs := int64(rs.rule.CollectionConfig.PostBufferSeconds * 1000)
		if now-rs.postBufferEnteredTs >= postMs {
			return rs.finalize(now)
		}
		return nil

	default:
		return nil
	}
}

// finalize marks the current segment Completed and resets to Idle.
// Also used for best-effort shutdown finalization of an in-flight
// segment regardless of phase.
func (rs *ruleState) finalize(now int64) *model.CollectionSegment {
	seg := rs.segment
	if seg == nil {
		return nil
	}
	seg.EndTs = now
	seg.Status = model.SegmentStatusCompleted
	rs.segment = nil
	rs.phase = engineIdle
	rs.stopConditionTs = nil
	return seg
}

// forceFinalize finalizes any in-flight (Collecting or PostBuffer)
// segment at shutdown, per spec.md §4.3's shutdown semantics.
func (rs *ruleState) forceFinalize(now int64) *model.CollectionSegment {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.phase == engineIdle {
		return nil
	}
	return rs.finalize(now)
}
