package cycle

import (
	"math"
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
)

func angleSamples(vals ...float64) []Sample {
	out := make([]Sample, len(vals))
	for i, v := range vals {
		out[i] = Sample{Ts: int64(i) * 1000, Value: v}
	}
	return out
}

func TestDetectCyclesFindsThresholdCrossing(t *testing.T) {
	// Crosses up at index 2 (ts=2000), down at index 6 (ts=6000): 4s cycle.
	angle := angleSamples(0, 5, 15, 20, 25, 15, 5, 0)
	motor1 := angleSamples(0, 1, 2, 3, 2, 1, 0, 0)
	motor2 := angleSamples(0, 1, 2, 3, 2, 1, 0, 0)

	cycles := DetectCycles("dev-1", "seg-1", angle, motor1, motor2, 10, 1, 600, nil)
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(cycles))
	}
	c := cycles[0]
	if c.Start != 2000 || c.End != 6000 {
		t.Errorf("expected [2000,6000], got [%d,%d]", c.Start, c.End)
	}
	if c.DurationS != 4 {
		t.Errorf("expected duration 4s, got %v", c.DurationS)
	}
	if c.MaxAngle != 25 {
		t.Errorf("expected max angle 25, got %v", c.MaxAngle)
	}
}

func TestDetectCyclesFiltersOutOfBoundsDuration(t *testing.T) {
	angle := angleSamples(0, 15, 15, 0) // crosses up at t=1000, down at t=3000: 2s
	motor1 := angleSamples(0, 1, 1, 0)
	motor2 := angleSamples(0, 1, 1, 0)

	cycles := DetectCycles("dev-1", "seg-1", angle, motor1, motor2, 10, 5, 600, nil)
	if len(cycles) != 0 {
		t.Errorf("expected 2s cycle to be filtered by min_cycle_duration=5s, got %d", len(cycles))
	}
}

func TestFitPolynomialBaselineRecoversExactQuadratic(t *testing.T) {
	// c(θ) = 2θ² + 3θ + 1, sampled exactly (noiseless) ⇒ R²≈1.
	var samples []AngleCurrentSample
	for theta := -5.0; theta <= 5.0; theta++ {
		samples = append(samples, AngleCurrentSample{AngleDeg: theta, Current: 2*theta*theta + 3*theta + 1})
	}
	model := FitPolynomialBaseline(samples)
	if math.Abs(model.A-2) > 1e-6 || math.Abs(model.B-3) > 1e-6 || math.Abs(model.C-1) > 1e-6 {
		t.Errorf("expected coefficients (2,3,1), got (%v,%v,%v)", model.A, model.B, model.C)
	}
	if model.R2 < 0.999 {
		t.Errorf("expected R2 ~1 for noiseless fit, got %v", model.R2)
	}
}

func TestFitPolynomialBaselineTooFewSamples(t *testing.T) {
	model := FitPolynomialBaseline([]AngleCurrentSample{{AngleDeg: 1, Current: 1}})
	if model.A != 0 || model.B != 0 || model.C != 0 {
		t.Errorf("expected zero-value model for <3 samples")
	}
}

func TestScoreCycleCombinesWeightedComponents(t *testing.T) {
	cfg := config.CycleConfig{
		DeviationWeight:  0.5,
		BalanceWeight:    0.3,
		DurationWeight:   0.2,
		AnomalyThreshold: 60,
	}
	cycle := modelWorkCycle(20, 1.0, 10) // 20% deviation, balanced, on-time
	scored := ScoreCycle(cycle, ScoreInputs{ExpectedDurationS: 10, AngleThreshold: 10}, cfg)
	want := 0.5*20 + 0.3*0 + 0.2*0
	if math.Abs(scored.AnomalyScore-want) > 1e-9 {
		t.Errorf("expected score %v, got %v", want, scored.AnomalyScore)
	}
	if scored.IsAnomaly {
		t.Errorf("score %v below threshold 60 should not be anomalous", scored.AnomalyScore)
	}
}

func TestScoreCycleFlagsMotorImbalanceAsDominant(t *testing.T) {
	cfg := config.CycleConfig{DeviationWeight: 0.5, BalanceWeight: 0.3, DurationWeight: 0.2, AnomalyThreshold: 60}
	// weighted: deviation=0.5*25=12.5, balance=0.3*100=30 (dominant), duration=0.2*100=20; sum=62.5>=60.
	cycle := modelWorkCycle(25, 2.0, 20)
	scored := ScoreCycle(cycle, ScoreInputs{ExpectedDurationS: 10, AngleThreshold: 10}, cfg)
	if !scored.IsAnomaly {
		t.Fatalf("expected anomaly: score=%v", scored.AnomalyScore)
	}
	if scored.AnomalyType != "motor_imbalance" {
		t.Errorf("expected motor_imbalance as dominant contributor, got %q", scored.AnomalyType)
	}
}

func modelWorkCycle(deviationPct, balanceRatio, durationS float64) model.WorkCycle {
	return model.WorkCycle{
		BaselineDeviationPct: deviationPct,
		BalanceRatio:         balanceRatio,
		DurationS:            durationS,
		MaxAngle:             90,
	}
}

func TestExtractorRegistryHasAngleDefault(t *testing.T) {
	e, err := GetExtractor("angle")
	if err != nil {
		t.Fatalf("expected built-in 'angle' extractor registered, got error: %v", err)
	}
	if e.Name() != "angle" {
		t.Errorf("expected Name()=angle, got %q", e.Name())
	}
}

func TestGetExtractorUnknownNameErrors(t *testing.T) {
	if _, err := GetExtractor("does-not-exist"); err == nil {
		t.Errorf("expected error for unregistered extractor name")
	}
}
