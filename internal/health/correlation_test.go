package health

import (
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

func TestEvaluateCorrelationsSameDirectionRequiresThreshold(t *testing.T) {
	windows := map[string]TagValueWindow{
		"pressure": {TagID: "pressure", Samples: []float64{10, 20, 30, 40, 50}},
		"flow":     {TagID: "flow", Samples: []float64{50, 40, 30, 20, 10}}, // perfectly anti-correlated
	}
	rules := []model.TagCorrelationRule{
		{RuleID: "c1", DeviceID: "dev-1", Tag1Pattern: "pressure", Tag2Pattern: "flow",
			Type: model.CorrelationSameDirection, Threshold: 0.9, PenaltyScore: 15, Enabled: true},
	}
	hits := EvaluateCorrelations("dev-1", windows, rules)
	if len(hits) != 0 {
		t.Errorf("expected SameDirection rule to NOT fire for anti-correlated pair, got %d hits", len(hits))
	}
}

func TestEvaluateCorrelationsOppositeDirectionFires(t *testing.T) {
	windows := map[string]TagValueWindow{
		"pressure": {TagID: "pressure", Samples: []float64{10, 20, 30, 40, 50}},
		"flow":     {TagID: "flow", Samples: []float64{50, 40, 30, 20, 10}},
	}
	rules := []model.TagCorrelationRule{
		{RuleID: "c1", DeviceID: "dev-1", Tag1Pattern: "pressure", Tag2Pattern: "flow",
			Type: model.CorrelationOppositeDirection, Threshold: 0.9, PenaltyScore: 15, Enabled: true},
	}
	hits := EvaluateCorrelations("dev-1", windows, rules)
	if len(hits) != 1 {
		t.Fatalf("expected OppositeDirection rule to fire for r=-1, got %d hits", len(hits))
	}
	if hits[0].R != -1 {
		t.Errorf("expected r=-1, got %v", hits[0].R)
	}
}

func TestEvaluateCorrelationsThresholdCombination(t *testing.T) {
	windows := map[string]TagValueWindow{
		"temp1": {TagID: "temp1", CurrentValue: 90},
		"temp2": {TagID: "temp2", CurrentValue: 5},
	}
	rules := []model.TagCorrelationRule{
		{RuleID: "c1", DeviceID: "dev-1", Tag1Pattern: "temp1", Tag2Pattern: "temp2",
			Type: model.CorrelationThresholdCombination, Tag1Predicate: "gt", Tag1Value: 80,
			Tag2Predicate: "lt", Tag2Value: 10, PenaltyScore: 20, Enabled: true},
	}
	hits := EvaluateCorrelations("dev-1", windows, rules)
	if len(hits) != 1 {
		t.Fatalf("expected ThresholdCombination rule to fire, got %d hits", len(hits))
	}
}

func TestEvaluateCorrelationsSkipsUnmatchedPatterns(t *testing.T) {
	windows := map[string]TagValueWindow{
		"temp1": {TagID: "temp1", CurrentValue: 90},
	}
	rules := []model.TagCorrelationRule{
		{RuleID: "c1", DeviceID: "dev-1", Tag1Pattern: "temp1", Tag2Pattern: "does-not-exist",
			Type: model.CorrelationThresholdCombination, Tag1Predicate: "gt", Tag1Value: 80, PenaltyScore: 20, Enabled: true},
	}
	hits := EvaluateCorrelations("dev-1", windows, rules)
	if len(hits) != 0 {
		t.Errorf("expected no hits when tag2 pattern matches nothing, got %d", len(hits))
	}
}

func TestResolveImportanceHighestPriorityGlobWins(t *testing.T) {
	rules := []model.TagImportanceRule{
		{RuleID: "r1", Pattern: "temp_*", Importance: model.ImportanceMinor, Priority: 1, Enabled: true},
		{RuleID: "r2", Pattern: "temp_critical_*", Importance: model.ImportanceCritical, Priority: 10, Enabled: true},
	}
	level := ResolveImportance("temp_critical_bearing", rules, model.ImportanceAuxiliary)
	if level != model.ImportanceCritical {
		t.Errorf("expected higher-priority critical pattern to win, got %v", level)
	}
}

func TestResolveImportanceFallsBackToDefault(t *testing.T) {
	level := ResolveImportance("unrelated_tag", nil, model.ImportanceMinor)
	if level != model.ImportanceMinor {
		t.Errorf("expected default importance for unmatched tag, got %v", level)
	}
}
