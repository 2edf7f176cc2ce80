package motor

import (
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

func TestDetectModeHighestPriorityWins(t *testing.T) {
	modes := []model.OperationMode{
		{ModeID: "idle", TriggerTagID: "speed", TriggerMin: 0, TriggerMax: 1000, MinDurationMs: 0, Priority: 1},
		{ModeID: "run", TriggerTagID: "speed", TriggerMin: 500, TriggerMax: 1000, MinDurationMs: 0, Priority: 10},
	}
	history := map[string][]TagSample{
		"speed": {{Ts: 0, Value: 800}, {Ts: 1000, Value: 810}},
	}
	mode, ok := DetectMode(modes, history, 1000)
	if !ok {
		t.Fatalf("expected a mode to match")
	}
	if mode.ModeID != "run" {
		t.Errorf("expected higher-priority 'run' to win over overlapping 'idle', got %q", mode.ModeID)
	}
}

func TestDetectModeRequiresMinDuration(t *testing.T) {
	modes := []model.OperationMode{
		{ModeID: "run", TriggerTagID: "speed", TriggerMin: 500, TriggerMax: 1000, MinDurationMs: 5000, Priority: 1},
	}
	history := map[string][]TagSample{
		"speed": {{Ts: 0, Value: 800}, {Ts: 1000, Value: 810}},
	}
	if _, ok := DetectMode(modes, history, 1000); ok {
		t.Errorf("expected no match: held only 1000ms of required 5000ms")
	}

	history["speed"] = append(history["speed"], TagSample{Ts: 5000, Value: 805})
	if _, ok := DetectMode(modes, history, 5000); !ok {
		t.Errorf("expected match once held for 5000ms")
	}
}

func TestDetectModeRespectsMaxDuration(t *testing.T) {
	modes := []model.OperationMode{
		{ModeID: "startup", TriggerTagID: "speed", TriggerMin: 0, TriggerMax: 100, MinDurationMs: 0, MaxDurationMs: 2000, Priority: 1},
	}
	history := map[string][]TagSample{
		"speed": {{Ts: 0, Value: 50}},
	}
	if _, ok := DetectMode(modes, history, 5000); ok {
		t.Errorf("expected no match: held 5000ms exceeds MaxDurationMs=2000")
	}
}

func TestDetectModeResetsOnExitingRange(t *testing.T) {
	modes := []model.OperationMode{
		{ModeID: "run", TriggerTagID: "speed", TriggerMin: 500, TriggerMax: 1000, MinDurationMs: 3000, Priority: 1},
	}
	history := map[string][]TagSample{
		"speed": {
			{Ts: 0, Value: 800},
			{Ts: 1000, Value: 200}, // dropped out of range, resets residency
			{Ts: 2000, Value: 800},
		},
	}
	if _, ok := DetectMode(modes, history, 3000); ok {
		t.Errorf("expected no match: only held in-range since ts=2000, 1000ms < required 3000ms")
	}
}

func TestDetectModeNoModesQualify(t *testing.T) {
	modes := []model.OperationMode{
		{ModeID: "run", TriggerTagID: "speed", TriggerMin: 500, TriggerMax: 1000, Priority: 1},
	}
	history := map[string][]TagSample{
		"speed": {{Ts: 0, Value: 10}},
	}
	if _, ok := DetectMode(modes, history, 0); ok {
		t.Errorf("expected no match: value 10 outside [500,1000]")
	}
}
