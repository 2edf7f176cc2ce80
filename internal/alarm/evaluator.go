// Package alarm implements the per-rule alarm evaluator (threshold,
// offline, ROC) and the AlarmGroup aggregator, with Ack/AckGroup/Close
// lifecycle transitions.
package alarm

import (
	"fmt"
	"sync"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// ruleState is the evaluator's per-rule memory, keyed by (device_id,
// rule_id) since a rule without DeviceID applies to every device
// producing its tag.
type ruleState struct {
	mu sync.Mutex

	lastFalseTs *int64 // threshold rules: ts of the most recent sample where the predicate was false; nil until one is seen
	firstTrueTs *int64 // threshold rules: ts of the first sample in the current continuous-true excursion; duration anchor only until a lastFalseTs is known
	fired       bool   // true once this continuous-true excursion has already produced a record
	rocRing     []rocSample
}

type rocSample struct {
	Ts    int64
	Value float64
}

// Evaluator evaluates incoming telemetry points against cached
// AlarmRules and produces AlarmRecords. It is single-threaded per
// process; a RuleCache atomic-swap is expected to gate rule visibility.
type Evaluator struct {
	mu     sync.Mutex
	states map[string]*ruleState // key = deviceID + "|" + ruleID
}

func NewEvaluator() *Evaluator {
	return &Evaluator{states: make(map[string]*ruleState)}
}

func stateKey(deviceID, ruleID string) string {
	return deviceID + "|" + ruleID
}

func (e *Evaluator) stateFor(deviceID, ruleID string) *ruleState {
	key := stateKey(deviceID, ruleID)
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[key]
	if !ok {
		st = &ruleState{}
		e.states[key] = st
	}
	return st
}

// EvaluateThreshold evaluates a threshold rule against a new sample.
// Returns a fired AlarmRecord once the predicate has held continuously
// for >= rule.DurationMs; nil otherwise. The excursion's actual start
// lies somewhere between the last false sample and the first true one;
// anchoring the duration gate to the last false sample (rather than the
// first true sample) assumes the earliest possible start, so a rule
// whose predicate has been true since before the last confirmed-false
// reading is treated as having been true that whole interval.
func (e *Evaluator) EvaluateThreshold(rule model.AlarmRule, deviceID string, ts int64, value float64) *model.AlarmRecord {
	st := e.stateFor(deviceID, rule.RuleID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !thresholdPredicate(rule, value) {
		falseTs := ts
		st.lastFalseTs = &falseTs
		st.firstTrueTs = nil
		st.fired = false
		return nil
	}
	if st.firstTrueTs == nil {
		first := ts
		st.firstTrueTs = &first
	}
	anchor := *st.firstTrueTs
	if st.lastFalseTs != nil {
		anchor = *st.lastFalseTs
	}
	if st.fired || ts-anchor < rule.DurationMs {
		return nil
	}

	st.fired = true
	return fire(rule, deviceID, ts, value)
}

func thresholdPredicate(rule model.AlarmRule, value float64) bool {
	switch rule.ConditionType {
	case model.CondGT:
		return value > rule.Threshold
	case model.CondGTE:
		return value >= rule.Threshold
	case model.CondLT:
		return value < rule.Threshold
	case model.CondLTE:
		return value <= rule.Threshold
	case model.CondEQ:
		return value == rule.Threshold
	case model.CondNE:
		return value != rule.Threshold
	default:
		return false
	}
}

// EvaluateOffline compares now-lastTs against rule.Threshold (seconds).
func (e *Evaluator) EvaluateOffline(rule model.AlarmRule, deviceID string, lastTs, now int64) *model.AlarmRecord {
	thresholdMs := int64(rule.Threshold * 1000)
	if now-lastTs < thresholdMs {
		return nil
	}
	return fire(rule, deviceID, now, float64(now-lastTs)/1000)
}

// EvaluateROC appends (ts, value) to the rule's window, evicts samples
// older than RocWindowMs, and compares the resulting delta to
// rule.Threshold.
func (e *Evaluator) EvaluateROC(rule model.AlarmRule, deviceID string, ts int64, value float64) *model.AlarmRecord {
	st := e.stateFor(deviceID, rule.RuleID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.rocRing = append(st.rocRing, rocSample{Ts: ts, Value: value})
	cutoff := ts - rule.ROCWindowMs
	i := 0
	for ; i < len(st.rocRing); i++ {
		if st.rocRing[i].Ts >= cutoff {
			break
		}
	}
	st.rocRing = st.rocRing[i:]

	if len(st.rocRing) < 2 {
		return nil
	}
	first := st.rocRing[0].Value
	last := st.rocRing[len(st.rocRing)-1].Value
	delta := last - first

	var metric float64
	switch rule.ConditionType {
	case model.CondROCAbsolute:
		metric = delta
	case model.CondROCPercent:
		if first == 0 {
			return nil
		}
		metric = delta / first * 100
	default:
		return nil
	}

	if metric < rule.Threshold {
		return nil
	}
	return fire(rule, deviceID, ts, metric)
}

func fire(rule model.AlarmRule, deviceID string, ts int64, value float64) *model.AlarmRecord {
	return &model.AlarmRecord{
		AlarmID:  fmt.Sprintf("%s-%s-%d", deviceID, rule.RuleID, ts),
		DeviceID: deviceID,
		TagID:    rule.TagID,
		Ts:       ts,
		Severity: rule.Severity,
		Code:     rule.RuleID,
		Message:  formatMessage(rule.MessageTemplate, value, rule.Threshold, rule.TagID),
		Status:   model.AlarmStatusOpen,
		Created:  ts,
		Updated:  ts,
	}
}

func formatMessage(template string, value, threshold float64, tagID string) string {
	if template == "" {
		return fmt.Sprintf("%s: value=%.4g threshold=%.4g", tagID, value, threshold)
	}
	return fmt.Sprintf(template, value, threshold, tagID)
}

// Reset clears a rule's continuity state, e.g. after a firing has been
// acknowledged and the rule should be eligible to re-arm on the next
// predicate transition from false to true.
func (e *Evaluator) Reset(deviceID, ruleID string) {
	st := e.stateFor(deviceID, ruleID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastFalseTs = nil
	st.firstTrueTs = nil
	st.fired = false
	st.rocRing = nil
}
