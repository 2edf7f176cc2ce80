package config

import "testing"

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateAccumulatesViolations(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	cfg.NodeID = ""
	cfg.Edge.QueueCapacityGlobal = 0
	cfg.HealthAssessment.Weights = HealthWeights{Deviation: -1, Trend: 0, Stability: 0, Alarm: 0}

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"schema_version", "node_id", "queue_capacity_global", "weights must be >= 0"} {
		if !contains(msg, want) {
			t.Errorf("expected validation message to mention %q, got:\n%s", want, msg)
		}
	}
}

func TestHealthWeightsMustSumToOne(t *testing.T) {
	cfg := Defaults()
	cfg.HealthAssessment.Weights = HealthWeights{Deviation: 0.1, Trend: 0.1, Stability: 0.1, Alarm: 0.1}
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error when weights sum far below 1.0")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
