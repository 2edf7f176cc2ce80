// Package motor implements the motor baseline learner: operation-mode
// detection, per-(mode,parameter) online statistics, and optional
// frequency-domain profiling of current signals.
package motor

import (
	"sort"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// TagSample is a single (timestamp, value) observation of a trigger or
// parameter tag.
type TagSample struct {
	Ts    int64
	Value float64
}

// modeWindow describes the continuous-residency window for one candidate
// OperationMode; DetectMode does not use it and derives residency from
// continuousResidency instead. A mode only qualifies once its
// trigger value has sat inside [TriggerMin, TriggerMax] for at least
// MinDurationMs, measured back from the most recent sample.
type modeWindow struct {
	enteredTs int64
	held      bool
}

// DetectMode scans modes by descending priority (ties broken by ascending
// ModeID) and returns the first whose trigger tag has held continuously in
// range for at least MinDurationMs and at most MaxDurationMs (0 =
// unbounded), given the trigger tag's recent sample history ending at now.
// Returns ok=false if no mode qualifies.
func DetectMode(modes []model.OperationMode, history map[string][]TagSample, now int64) (model.OperationMode, bool) {
	ordered := make([]model.OperationMode, len(modes))
	copy(ordered, modes)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].ModeID < ordered[j].ModeID
	})

	for _, m := range ordered {
		samples := history[m.TriggerTagID]
		if len(samples) == 0 {
			continue
		}
		heldSinceTs, ok := continuousResidency(samples, m.TriggerMin, m.TriggerMax, now)
		if !ok {
			continue
		}
		heldMs := now - heldSinceTs
		if heldMs < m.MinDurationMs {
			continue
		}
		if m.MaxDurationMs > 0 && heldMs > m.MaxDurationMs {
			continue
		}
		return m, true
	}
	return model.OperationMode{}, false
}

// continuousResidency walks samples backward from the most recent and
// returns the timestamp at which the value most recently entered
// [min,max] and has remained there through now. Samples must be sorted
// ascending by Ts. ok is false if the latest sample is out of range.
func continuousResidency(samples []TagSample, min, max float64, now int64) (enteredTs int64, ok bool) {
	last := samples[len(samples)-1]
	if last.Value < min || last.Value > max {
		return 0, false
	}
	enteredTs = last.Ts
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		if s.Value < min || s.Value > max {
			break
		}
		enteredTs = s.Ts
	}
	return enteredTs, true
}
