package health

import (
	"context"
	"math"
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

type fakeTagSource struct {
	values map[string][]float64
}

func (f fakeTagSource) TagValues(ctx context.Context, deviceID, tagID string, startTs, endTs int64) ([]statutil.TimedValue, error) {
	vals := f.values[tagID]
	out := make([]statutil.TimedValue, len(vals))
	for i, v := range vals {
		out[i] = statutil.TimedValue{Ts: startTs + int64(i)*1000, Value: v}
	}
	return out, nil
}

type fakeBaselineSource struct {
	baselines map[string]model.DeviceBaseline
}

func (f fakeBaselineSource) Baseline(deviceID, tagID string) (model.DeviceBaseline, bool) {
	b, ok := f.baselines[tagID]
	return b, ok
}

type fakeAlarmSource struct {
	alarms []OpenAlarmInWindow
}

func (f fakeAlarmSource) OpenAlarms(ctx context.Context, deviceID string, windowStart, windowEnd int64) ([]OpenAlarmInWindow, error) {
	return f.alarms, nil
}

type fakeRuleSource struct {
	tags         []string
	importance   []model.TagImportanceRule
	correlations []model.TagCorrelationRule
}

func (f fakeRuleSource) DeviceTags(deviceID string) []string                        { return f.tags }
func (f fakeRuleSource) ImportanceRules() []model.TagImportanceRule                  { return f.importance }
func (f fakeRuleSource) CorrelationRules() []model.TagCorrelationRule                { return f.correlations }

func TestAssessReproducesHealthCompositeScenario(t *testing.T) {
	cfg := config.HealthAssessmentConfig{
		Weights:              config.HealthWeights{Deviation: 0.35, Trend: 0.25, Stability: 0.20, Alarm: 0.20},
		LevelThresholds:      config.HealthLevelThresholds{HealthyMin: 80, AttentionMin: 60, WarningMin: 40},
		DefaultWindowMinutes: 60,
		TrendSlopeK:          100,
		StabilityK:            10,
		MinScore:             0,
		ConsiderDuration:     true,
		DurationFactorPerHour: 0.05,
		MaxMultiplier:        2.0,
		MinSampleCount:       30,
		DefaultTagImportance: "Minor",
		ProblemTagsTopN:      5,
	}

	eng := NewEngine(
		fakeTagSource{values: map[string][]float64{"temp": {56, 56, 56, 56, 56}}},
		fakeBaselineSource{baselines: map[string]model.DeviceBaseline{
			"temp": {DeviceID: "dev-1", TagID: "temp", Mean: 50, Std: 2},
		}},
		fakeAlarmSource{},
		fakeRuleSource{
			tags: []string{"temp"},
			importance: []model.TagImportanceRule{
				{RuleID: "r1", Pattern: "temp", Importance: model.ImportanceCritical, Priority: 1, Enabled: true},
			},
		},
		cfg,
		config.MultiScaleConfig{Enabled: false},
	)

	result, err := eng.Assess(context.Background(), "dev-1", 3_600_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(result.Snapshot.Index-79) > 1e-9 {
		t.Errorf("expected composite index 79, got %v", result.Snapshot.Index)
	}
	if result.Snapshot.Level != model.HealthLevelAttention {
		t.Errorf("expected level Attention, got %v", result.Snapshot.Level)
	}
	if math.Abs(result.Snapshot.DeviationScore-40) > 1e-9 {
		t.Errorf("expected deviation score 40, got %v", result.Snapshot.DeviationScore)
	}
}

func TestAssessAppliesCorrelationPenalty(t *testing.T) {
	cfg := config.HealthAssessmentConfig{
		Weights:              config.HealthWeights{Deviation: 0.35, Trend: 0.25, Stability: 0.20, Alarm: 0.20},
		LevelThresholds:      config.HealthLevelThresholds{HealthyMin: 80, AttentionMin: 60, WarningMin: 40},
		DefaultWindowMinutes: 60,
		TrendSlopeK:          100,
		StabilityK:           10,
		DefaultTagImportance: "Minor",
	}
	flatValues := map[string][]float64{"pressure": {50, 50, 50}, "flow": {50, 50, 50}}
	baseRule := fakeRuleSource{tags: []string{"pressure", "flow"}}

	without := NewEngine(fakeTagSource{values: flatValues}, fakeBaselineSource{baselines: map[string]model.DeviceBaseline{}}, fakeAlarmSource{}, baseRule, cfg, config.MultiScaleConfig{})
	withoutResult, err := without.Assess(context.Background(), "dev-1", 3_600_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	penalized := baseRule
	penalized.correlations = []model.TagCorrelationRule{
		{RuleID: "c1", DeviceID: "dev-1", Tag1Pattern: "pressure", Tag2Pattern: "flow",
			Type: model.CorrelationThresholdCombination, Tag1Predicate: "gte", Tag1Value: 40,
			Tag2Predicate: "gte", Tag2Value: 40, PenaltyScore: 15, Enabled: true},
	}
	with := NewEngine(fakeTagSource{values: flatValues}, fakeBaselineSource{baselines: map[string]model.DeviceBaseline{}}, fakeAlarmSource{}, penalized, cfg, config.MultiScaleConfig{})
	withResult, err := with.Assess(context.Background(), "dev-1", 3_600_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if withResult.Snapshot.Index != withoutResult.Snapshot.Index-15 {
		t.Errorf("expected penalty of 15 subtracted from composite: without=%v with=%v", withoutResult.Snapshot.Index, withResult.Snapshot.Index)
	}
}

func TestAssessMultiScaleBlendsWindows(t *testing.T) {
	cfg := config.HealthAssessmentConfig{
		Weights:              config.HealthWeights{Deviation: 0.35, Trend: 0.25, Stability: 0.20, Alarm: 0.20},
		LevelThresholds:      config.HealthLevelThresholds{HealthyMin: 80, AttentionMin: 60, WarningMin: 40},
		DefaultWindowMinutes: 60,
		TrendSlopeK:          100,
		StabilityK:           10,
		DefaultTagImportance: "Minor",
	}
	multi := config.MultiScaleConfig{
		Enabled: true, ShortTermMinutes: 5, ShortWeight: 0.4,
		MediumTermMinutes: 60, MediumWeight: 0.35,
		LongTermMinutes: 1440, LongWeight: 0.25,
	}
	eng := NewEngine(
		fakeTagSource{values: map[string][]float64{"temp": {50, 50, 50}}},
		fakeBaselineSource{baselines: map[string]model.DeviceBaseline{}},
		fakeAlarmSource{},
		fakeRuleSource{tags: []string{"temp"}},
		cfg,
		multi,
	)
	result, err := eng.Assess(context.Background(), "dev-1", 3_600_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Snapshot.Index != 100 {
		t.Errorf("expected blended composite 100 for a perfectly nominal device, got %v", result.Snapshot.Index)
	}
}
