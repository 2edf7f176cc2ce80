// Package prognostics forecasts tag trends, detects sustained
// degradation, and estimates remaining useful life from learned
// baselines and historical tag windows.
package prognostics

import (
	"math"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

// ThresholdRule is the minimal shape of an applicable AlarmRule needed
// to compute hours-to-threshold: a direction (via ConditionType) and a
// value the tag is heading toward.
type ThresholdRule struct {
	ConditionType model.AlarmConditionType
	Threshold     float64
}

// PredictTrend fits a linear regression and an exponential-smoothing
// forecast over history, then classifies the result against rule (if
// any applies) using cfg's confidence threshold and the standard
// 24/48/72-hour alert bucketing.
func PredictTrend(deviceID, tagID string, history []statutil.TimedValue, now int64, rule *ThresholdRule, cfg config.TrendPredictionConfig) model.TrendPrediction {
	pred := model.TrendPrediction{
		DeviceID: deviceID,
		TagID:    tagID,
		Ts:       now,
		Alert:    model.AlertLevelNone,
	}
	if len(history) < 2 {
		return pred
	}

	slope, _, r2 := statutil.LinearRegression(history)
	pred.SlopePerHour = slope
	pred.Confidence = r2

	values := make([]float64, len(history))
	for i, h := range history {
		values[i] = h.Value
	}
	alpha := cfg.SmoothingAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	pred.ForecastValue = statutil.ExponentialSmoothing(values, alpha)

	if rule == nil || r2 < cfg.ConfidenceThreshold {
		return pred
	}

	hours, crossing := hoursToThreshold(values[len(values)-1], slope, *rule)
	if !crossing {
		return pred
	}
	pred.HoursToThreshold = hours
	pred.Alert = classifyAlert(hours)
	return pred
}

// hoursToThreshold returns the hours until the forecast current+slope*t
// line crosses rule.Threshold in the degrading direction, and whether
// that crossing is valid (slope moving toward the threshold, and in
// range for the rule's condition). A GT/GTE rule degrades upward: only
// a positive slope approaching from below counts. LT/LTE degrades
// downward: only a negative slope approaching from above counts.
func hoursToThreshold(current, slopePerHour float64, rule ThresholdRule) (hours float64, ok bool) {
	switch rule.ConditionType {
	case model.CondGT, model.CondGTE:
		if slopePerHour <= 0 || current >= rule.Threshold {
			return 0, false
		}
		return (rule.Threshold - current) / slopePerHour, true
	case model.CondLT, model.CondLTE:
		if slopePerHour >= 0 || current <= rule.Threshold {
			return 0, false
		}
		return (rule.Threshold - current) / slopePerHour, true
	default:
		return 0, false
	}
}

// classifyAlert buckets a valid, finite degrading crossing into the
// ordered urgency tiers. hoursToThreshold already guarantees the
// crossing is real (right direction, not already past), so every value
// reaching here falls into Critical/High/Medium/Low — never None.
func classifyAlert(hours float64) model.AlertLevel {
	if math.IsInf(hours, 0) || math.IsNaN(hours) || hours < 0 {
		return model.AlertLevelNone
	}
	switch {
	case hours < 24:
		return model.AlertLevelCritical
	case hours < 48:
		return model.AlertLevelHigh
	case hours < 72:
		return model.AlertLevelMedium
	default:
		return model.AlertLevelLow
	}
}
