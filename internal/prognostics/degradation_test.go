package prognostics

import (
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

func hourlySeries(startVal, perHour float64, hours int) []statutil.TimedValue {
	out := make([]statutil.TimedValue, 0, hours+1)
	for h := 0; h <= hours; h++ {
		out = append(out, statutil.TimedValue{Ts: int64(h) * 3_600_000, Value: startVal + perHour*float64(h)})
	}
	return out
}

func testDegradationConfig() config.DegradationConfig {
	return config.DegradationConfig{
		NoiseFilterWindowHours:   0,
		DetectionWindowDays:      30,
		DegradationRateThreshold: 0.5,
		ConfirmationCount:        3,
	}
}

func TestDegradationDetectorRequiresConfirmationStreak(t *testing.T) {
	det := NewDegradationDetector(testDegradationConfig())
	history := hourlySeries(100, 1, 10) // 100 -> 110, slope 1/hr, ~24%/day

	if ev := det.Evaluate("dev-1", "temp", history, 10*3_600_000); ev != nil {
		t.Fatalf("expected nil on first evaluation (streak 1 < confirmation count 3), got %+v", ev)
	}
	if ev := det.Evaluate("dev-1", "temp", history, 10*3_600_000); ev != nil {
		t.Fatalf("expected nil on second evaluation (streak 2 < 3), got %+v", ev)
	}
	ev := det.Evaluate("dev-1", "temp", history, 10*3_600_000)
	if ev == nil {
		t.Fatal("expected a confirmed event on the third consecutive evaluation")
	}
	if ev.Type != model.DegradationGradualIncrease {
		t.Errorf("expected GradualIncrease, got %v", ev.Type)
	}
	if ev.ConfirmedStreak != 3 {
		t.Errorf("expected confirmed streak 3, got %d", ev.ConfirmedStreak)
	}
}

func TestDegradationDetectorResetsStreakOnTypeChange(t *testing.T) {
	det := NewDegradationDetector(testDegradationConfig())
	increasing := hourlySeries(100, 1, 10)
	decreasing := hourlySeries(100, -1, 10)

	det.Evaluate("dev-1", "temp", increasing, 10*3_600_000)
	det.Evaluate("dev-1", "temp", increasing, 10*3_600_000)
	// switches type before reaching the confirmation count; streak must reset
	if ev := det.Evaluate("dev-1", "temp", decreasing, 10*3_600_000); ev != nil {
		t.Fatalf("expected nil right after a type change resets the streak, got %+v", ev)
	}
	if ev := det.Evaluate("dev-1", "temp", decreasing, 10*3_600_000); ev != nil {
		t.Fatalf("expected nil on second consecutive decrease (streak 2 < 3), got %+v", ev)
	}
	ev := det.Evaluate("dev-1", "temp", decreasing, 10*3_600_000)
	if ev == nil || ev.Type != model.DegradationGradualDecrease {
		t.Fatalf("expected a confirmed GradualDecrease after 3 consecutive matching evaluations, got %+v", ev)
	}
}

func TestDegradationDetectorFlatSeriesNeverDegrades(t *testing.T) {
	det := NewDegradationDetector(testDegradationConfig())
	flat := hourlySeries(100, 0, 10)
	for i := 0; i < 5; i++ {
		if ev := det.Evaluate("dev-1", "temp", flat, 10*3_600_000); ev != nil {
			t.Fatalf("expected no degradation event for a flat series, got %+v", ev)
		}
	}
}

func TestDegradationDetectorDetectsIncreasingVariance(t *testing.T) {
	det := NewDegradationDetector(testDegradationConfig())
	history := []statutil.TimedValue{
		{Ts: 0, Value: 100},
		{Ts: 3_600_000, Value: 100},
		{Ts: 7_200_000, Value: 100},
		{Ts: 10_800_000, Value: 100},
		{Ts: 14_400_000, Value: 100},
		{Ts: 18_000_000, Value: 80},
		{Ts: 21_600_000, Value: 120},
		{Ts: 25_200_000, Value: 80},
		{Ts: 28_800_000, Value: 120},
		{Ts: 32_400_000, Value: 100},
	}
	var ev *model.DegradationEvent
	for i := 0; i < 3; i++ {
		ev = det.Evaluate("dev-1", "vibration", history, 32_400_000)
	}
	if ev == nil {
		t.Fatal("expected a confirmed IncreasingVariance event")
	}
	if ev.Type != model.DegradationIncreasingVariance {
		t.Errorf("expected IncreasingVariance, got %v", ev.Type)
	}
}
