package prognostics

import (
	"math"
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

func risingSeries(startTs int64, startVal, perHour float64, hours int) []statutil.TimedValue {
	out := make([]statutil.TimedValue, 0, hours+1)
	for h := 0; h <= hours; h++ {
		out = append(out, statutil.TimedValue{
			Ts:    startTs + int64(h)*3_600_000,
			Value: startVal + perHour*float64(h),
		})
	}
	return out
}

func TestPredictTrendClassifiesCriticalForImminentCrossing(t *testing.T) {
	history := risingSeries(0, 90, 1, 10) // 90 -> 100 over 10h, slope 1/hr
	rule := &ThresholdRule{ConditionType: model.CondGT, Threshold: 110}
	cfg := config.TrendPredictionConfig{SmoothingAlpha: 0.3, ConfidenceThreshold: 0.5}

	pred := PredictTrend("dev-1", "temp", history, 36_000_000, rule, cfg)

	if pred.Alert != model.AlertLevelCritical {
		t.Fatalf("expected Critical alert for a ~10h crossing, got %v (hours=%v)", pred.Alert, pred.HoursToThreshold)
	}
	if math.Abs(pred.HoursToThreshold-10) > 1e-6 {
		t.Errorf("expected hours_to_threshold ~10, got %v", pred.HoursToThreshold)
	}
}

func TestPredictTrendNoneWhenSlopeMovesAwayFromThreshold(t *testing.T) {
	history := risingSeries(0, 90, 1, 10)
	rule := &ThresholdRule{ConditionType: model.CondLT, Threshold: 10} // degrading downward, but slope is positive
	cfg := config.TrendPredictionConfig{SmoothingAlpha: 0.3, ConfidenceThreshold: 0.5}

	pred := PredictTrend("dev-1", "temp", history, 36_000_000, rule, cfg)

	if pred.Alert != model.AlertLevelNone {
		t.Errorf("expected None when slope moves away from threshold, got %v", pred.Alert)
	}
	if pred.HoursToThreshold != 0 {
		t.Errorf("expected hours_to_threshold 0 for a non-crossing trend, got %v", pred.HoursToThreshold)
	}
}

func TestPredictTrendNoneWithoutRule(t *testing.T) {
	history := risingSeries(0, 90, 1, 10)
	cfg := config.TrendPredictionConfig{SmoothingAlpha: 0.3, ConfidenceThreshold: 0.5}

	pred := PredictTrend("dev-1", "temp", history, 36_000_000, nil, cfg)

	if pred.Alert != model.AlertLevelNone {
		t.Errorf("expected None with no applicable rule, got %v", pred.Alert)
	}
	if pred.SlopePerHour <= 0 {
		t.Errorf("expected a positive slope to still be reported, got %v", pred.SlopePerHour)
	}
}

func TestPredictTrendNoneBelowConfidenceThreshold(t *testing.T) {
	// a flat, noisy series has near-zero R^2
	history := []statutil.TimedValue{
		{Ts: 0, Value: 50},
		{Ts: 3_600_000, Value: 80},
		{Ts: 7_200_000, Value: 20},
		{Ts: 10_800_000, Value: 70},
		{Ts: 14_400_000, Value: 30},
	}
	rule := &ThresholdRule{ConditionType: model.CondGT, Threshold: 110}
	cfg := config.TrendPredictionConfig{SmoothingAlpha: 0.3, ConfidenceThreshold: 0.9}

	pred := PredictTrend("dev-1", "temp", history, 14_400_000, rule, cfg)

	if pred.Alert != model.AlertLevelNone {
		t.Errorf("expected None below confidence threshold, got %v", pred.Alert)
	}
}

func TestPredictTrendBucketsMediumAndLow(t *testing.T) {
	cfg := config.TrendPredictionConfig{SmoothingAlpha: 0.3, ConfidenceThreshold: 0.5}

	// risingSeries(0, 40, 1, 10) ends at value 50 (hour 10), slope 1/hr.
	medium := PredictTrend("dev-1", "temp", risingSeries(0, 40, 1, 10),
		36_000_000, &ThresholdRule{ConditionType: model.CondGTE, Threshold: 110}, cfg) // 60h to go
	if medium.Alert != model.AlertLevelMedium {
		t.Errorf("expected Medium for a ~60h crossing, got %v (hours=%v)", medium.Alert, medium.HoursToThreshold)
	}

	low := PredictTrend("dev-1", "temp", risingSeries(0, 40, 1, 10),
		36_000_000, &ThresholdRule{ConditionType: model.CondGTE, Threshold: 130}, cfg) // 80h to go
	if low.Alert != model.AlertLevelLow {
		t.Errorf("expected Low for a ~80h crossing, got %v (hours=%v)", low.Alert, low.HoursToThreshold)
	}
}

func TestPredictTrendInsufficientHistory(t *testing.T) {
	cfg := config.TrendPredictionConfig{SmoothingAlpha: 0.3, ConfidenceThreshold: 0.5}
	pred := PredictTrend("dev-1", "temp", []statutil.TimedValue{{Ts: 0, Value: 50}}, 0, nil, cfg)
	if pred.Alert != model.AlertLevelNone {
		t.Errorf("expected None with under 2 points, got %v", pred.Alert)
	}
}
