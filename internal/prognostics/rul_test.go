package prognostics

import (
	"math"
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

const oneDayMs = 86_400_000

func TestEstimateRULReproducesLinearScenario(t *testing.T) {
	var history []statutil.TimedValue
	for day := 0; day < 10; day++ {
		history = append(history, statutil.TimedValue{
			Ts:    int64(day) * oneDayMs,
			Value: 100 - 2*float64(day),
		})
	}
	cfg := config.RulPredictionConfig{
		FailureThreshold:   30,
		ModelType:          "Linear",
		AvgRepairLeadHours: 0,
	}
	now := int64(9) * oneDayMs

	est := EstimateRUL("dev-1", history, now, cfg)

	if math.Abs(est.RULHours-624) > 1e-6 {
		t.Errorf("expected RUL of 624 hours (26 days), got %v", est.RULHours)
	}
	if est.Risk != model.RULRiskMedium {
		t.Errorf("expected Medium risk for a 26-day RUL, got %v", est.Risk)
	}
	if est.Confidence < 0.99 {
		t.Errorf("expected confidence >= 0.99 for a perfectly linear fit, got %v", est.Confidence)
	}
}

func TestEstimateRULNearFailureAndCritical(t *testing.T) {
	history := []statutil.TimedValue{
		{Ts: 0, Value: 50},
		{Ts: 3_600_000, Value: 40},
		{Ts: 7_200_000, Value: 30},
	}
	cfg := config.RulPredictionConfig{FailureThreshold: 20, ModelType: "Linear"}
	est := EstimateRUL("dev-1", history, 7_200_000, cfg)
	if est.Risk != model.RULRiskCritical {
		t.Errorf("expected Critical risk for a sub-1-day RUL, got %v (hours=%v)", est.Risk, est.RULHours)
	}
	if est.Status != model.RULStatusNearFailure {
		t.Errorf("expected NearFailure status, got %v", est.Status)
	}
}

func TestEstimateRULHealthyWhenNotDegrading(t *testing.T) {
	history := []statutil.TimedValue{
		{Ts: 0, Value: 100},
		{Ts: 3_600_000, Value: 100},
		{Ts: 7_200_000, Value: 100},
	}
	cfg := config.RulPredictionConfig{FailureThreshold: 30, ModelType: "Linear"}
	est := EstimateRUL("dev-1", history, 7_200_000, cfg)
	if est.Status != model.RULStatusHealthy {
		t.Errorf("expected Healthy status for a flat series, got %v", est.Status)
	}
	if !math.IsInf(est.RULHours, 1) {
		t.Errorf("expected +Inf RUL for a non-degrading series, got %v", est.RULHours)
	}
	if est.Risk != model.RULRiskLow {
		t.Errorf("expected Low risk for a healthy device, got %v", est.Risk)
	}
}

func TestEstimateRULExponentialModel(t *testing.T) {
	var history []statutil.TimedValue
	for h := 0; h < 10; h++ {
		history = append(history, statutil.TimedValue{
			Ts:    int64(h) * 3_600_000,
			Value: 100 * math.Exp(-0.05*float64(h)),
		})
	}
	cfg := config.RulPredictionConfig{FailureThreshold: 50, ModelType: "Exponential"}
	est := EstimateRUL("dev-1", history, 9*3_600_000, cfg)

	wantHours := math.Log(100.0/50.0)/0.05 - 9
	if math.Abs(est.RULHours-wantHours) > 0.01 {
		t.Errorf("expected RUL ~%v hours, got %v", wantHours, est.RULHours)
	}
	if est.Confidence < 0.99 {
		t.Errorf("expected confidence >= 0.99 for a perfect exponential fit, got %v", est.Confidence)
	}
}

func TestEstimateRULWeibullModelIsMoreConservativeThanLinear(t *testing.T) {
	var history []statutil.TimedValue
	for day := 0; day < 10; day++ {
		history = append(history, statutil.TimedValue{
			Ts:    int64(day) * oneDayMs,
			Value: 100 - 2*float64(day),
		})
	}
	now := int64(9) * oneDayMs
	linear := EstimateRUL("dev-1", history, now, config.RulPredictionConfig{FailureThreshold: 30, ModelType: "Linear"})
	weibull := EstimateRUL("dev-1", history, now, config.RulPredictionConfig{FailureThreshold: 30, ModelType: "Weibull"})

	if weibull.RULHours >= linear.RULHours {
		t.Errorf("expected the wear-out Weibull model to predict less RUL than linear extrapolation: linear=%v weibull=%v", linear.RULHours, weibull.RULHours)
	}
	if weibull.RULHours <= 0 {
		t.Errorf("expected a positive Weibull RUL, got %v", weibull.RULHours)
	}
}

func TestEstimateRULInsufficientHistory(t *testing.T) {
	cfg := config.RulPredictionConfig{FailureThreshold: 30, ModelType: "Linear"}
	est := EstimateRUL("dev-1", []statutil.TimedValue{{Ts: 0, Value: 100}}, 0, cfg)
	if est.Status != model.RULStatusInsufficientData {
		t.Errorf("expected InsufficientData status with under 2 points, got %v", est.Status)
	}
}

func TestRankFactorsOrdersByContributionMagnitude(t *testing.T) {
	inputs := []FactorInput{
		{
			ParameterID:  "vibration",
			BaselineMean: 10, BaselineStd: 1,
			History: []statutil.TimedValue{{Ts: 0, Value: 10}, {Ts: 3_600_000, Value: 16}}, // z=6, rising
		},
		{
			ParameterID:  "temperature",
			BaselineMean: 50, BaselineStd: 5,
			History: []statutil.TimedValue{{Ts: 0, Value: 50}, {Ts: 3_600_000, Value: 52}}, // z=0.4, rising
		},
	}
	factors := RankFactors(inputs)
	if len(factors) != 2 {
		t.Fatalf("expected 2 factors, got %d", len(factors))
	}
	if factors[0].ParameterID != "vibration" {
		t.Errorf("expected vibration to rank first (larger z-score), got %v", factors[0].ParameterID)
	}
	sum := factors[0].Weight + factors[1].Weight
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("expected weights to sum to 1, got %v", sum)
	}
	if factors[0].Contribution <= 0 {
		t.Errorf("expected a positive contribution for a rising parameter, got %v", factors[0].Contribution)
	}
}
