package health

import (
	"math"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

// TagWindow is one tag's aligned sample window plus its learned
// baseline, as needed by DeviationScore/StabilityScore.
type TagWindow struct {
	TagID       string
	Values      []float64
	Baseline    model.DeviceBaseline
	HasBaseline bool
	Importance  model.TagImportanceLevel
}

// severityPenalty buckets an AlarmRecord's 1..5 severity into the four
// named penalty tiers spec.md's alarm score formula names. 5 is the most
// severe ("Critical"); 1-2 collapse to "Info" since the data model only
// carries a numeric scale, not named tiers.
func severityPenalty(severity int) float64 {
	switch {
	case severity >= 5:
		return 40
	case severity == 4:
		return 25
	case severity == 3:
		return 15
	default:
		return 5
	}
}

// DeviationScore aggregates per-tag z-score penalties, weighted by each
// tag's importance weight. Tags without a learned baseline (Std==0 or
// HasBaseline==false) are skipped. Returns 100 if no tag qualifies.
func DeviationScore(windows []TagWindow) float64 {
	var weightedSum, weightTotal float64
	for _, w := range windows {
		if !w.HasBaseline || w.Baseline.Std <= 0 || len(w.Values) == 0 {
			continue
		}
		mean := meanOf(w.Values)
		z := math.Abs(mean-w.Baseline.Mean) / w.Baseline.Std
		penalty := math.Min(100, z*20)
		score := 100 - penalty
		weight := w.Importance.Weight()
		if weight <= 0 {
			weight = 1
		}
		weightedSum += weight * score
		weightTotal += weight
	}
	if weightTotal == 0 {
		return 100
	}
	return weightedSum / weightTotal
}

// TrendScore scores a window's linear-regression slope, normalized by
// the tag's learned value range (Max-Min), against TrendSlopeK.
func TrendScore(tsValues []statutil.TimedValue, baselineRange, k float64) float64 {
	if len(tsValues) < 2 {
		return 100
	}
	slope, _, _ := statutil.LinearRegression(tsValues)
	slopeNorm := slope
	if baselineRange > 0 {
		slopeNorm = slope / baselineRange
	}
	penalty := math.Min(100, math.Abs(slopeNorm)*k)
	return 100 - penalty
}

// StabilityScore scores the coefficient of variation of a single
// window's values against StabilityK.
func StabilityScore(values []float64, k float64) float64 {
	if len(values) == 0 {
		return 100
	}
	mean := meanOf(values)
	if mean == 0 {
		return 100
	}
	std := stddevOf(values, mean)
	cv := std / math.Abs(mean)
	return 100 * math.Exp(-cv*k)
}

// OpenAlarmInWindow is the minimal alarm shape the alarm score needs.
type OpenAlarmInWindow struct {
	Severity    int
	OpenedTs    int64
	WindowEndTs int64
}

// AlarmScore starts at 100 and subtracts each open alarm's severity
// penalty, optionally scaled up by how long it's been open, floored at
// cfg.MinScore.
func AlarmScore(alarms []OpenAlarmInWindow, cfg config.HealthAssessmentConfig) float64 {
	score := 100.0
	for _, a := range alarms {
		penalty := severityPenalty(a.Severity)
		if cfg.ConsiderDuration {
			hours := float64(a.WindowEndTs-a.OpenedTs) / 3_600_000
			if hours < 0 {
				hours = 0
			}
			multiplier := math.Min(cfg.MaxMultiplier, 1+cfg.DurationFactorPerHour*hours)
			penalty *= multiplier
		}
		score -= penalty
	}
	if score < cfg.MinScore {
		score = cfg.MinScore
	}
	return score
}

// Composite combines the four weighted scores into the 0..100 index.
func Composite(deviation, trend, stability, alarm float64, w config.HealthWeights) float64 {
	idx := w.Deviation*deviation + w.Trend*trend + w.Stability*stability + w.Alarm*alarm
	return clamp(math.Round(idx), 0, 100)
}

// Level buckets a composite index into a HealthLevel per the configured
// thresholds.
func Level(index float64, t config.HealthLevelThresholds) model.HealthLevel {
	switch {
	case index >= t.HealthyMin:
		return model.HealthLevelHealthy
	case index >= t.AttentionMin:
		return model.HealthLevelAttention
	case index >= t.WarningMin:
		return model.HealthLevelWarning
	default:
		return model.HealthLevelCritical
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
