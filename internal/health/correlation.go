package health

import (
	"path"

	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

// TagValueWindow carries one tag's samples plus its current (most
// recent) value, the shape CorrelationHit's ThresholdCombination branch
// needs.
type TagValueWindow struct {
	TagID        string
	Samples      []float64
	CurrentValue float64
}

// CorrelationHit is one TagCorrelationRule that fired against the
// device's current window.
type CorrelationHit struct {
	Rule model.TagCorrelationRule
	R    float64
}

// EvaluateCorrelations checks every enabled rule matching deviceID
// against the device's tag windows, returning the rules that triggered.
// Rules whose tag1/tag2 patterns don't both resolve to a present window
// are skipped (insufficient data, not a violation).
func EvaluateCorrelations(deviceID string, windows map[string]TagValueWindow, rules []model.TagCorrelationRule) []CorrelationHit {
	var hits []CorrelationHit
	for _, rule := range rules {
		if !rule.Enabled || rule.DeviceID != deviceID {
			continue
		}
		w1, ok1 := matchWindow(windows, rule.Tag1Pattern)
		w2, ok2 := matchWindow(windows, rule.Tag2Pattern)
		if !ok1 || !ok2 {
			continue
		}

		switch rule.Type {
		case model.CorrelationSameDirection, model.CorrelationOppositeDirection:
			r := statutil.PearsonCorrelation(w1.Samples, w2.Samples)
			if rule.Type == model.CorrelationSameDirection && r >= rule.Threshold {
				hits = append(hits, CorrelationHit{Rule: rule, R: r})
			} else if rule.Type == model.CorrelationOppositeDirection && r <= -rule.Threshold {
				hits = append(hits, CorrelationHit{Rule: rule, R: r})
			}
		case model.CorrelationThresholdCombination:
			if comparePredicate(w1.CurrentValue, rule.Tag1Predicate, rule.Tag1Value) &&
				comparePredicate(w2.CurrentValue, rule.Tag2Predicate, rule.Tag2Value) {
				hits = append(hits, CorrelationHit{Rule: rule})
			}
		}
	}
	return hits
}

func matchWindow(windows map[string]TagValueWindow, pattern string) (TagValueWindow, bool) {
	for tagID, w := range windows {
		if matched, err := path.Match(pattern, tagID); err == nil && matched {
			return w, true
		}
	}
	return TagValueWindow{}, false
}

func comparePredicate(actual float64, op string, threshold float64) bool {
	switch op {
	case "gt":
		return actual > threshold
	case "gte":
		return actual >= threshold
	case "lt":
		return actual < threshold
	case "lte":
		return actual <= threshold
	case "eq":
		return actual == threshold
	case "ne":
		return actual != threshold
	default:
		return false
	}
}

// ApplyPenalties subtracts each hit's PenaltyScore from the composite,
// floored at 0.
func ApplyPenalties(composite float64, hits []CorrelationHit) float64 {
	for _, h := range hits {
		composite -= h.Rule.PenaltyScore
	}
	if composite < 0 {
		composite = 0
	}
	return composite
}
