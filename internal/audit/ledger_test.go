package audit

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestValidateAcceptsAllowedAlarmTransition(t *testing.T) {
	l := NewLedger(zap.NewNop(), false)
	d := &Decision{
		EntityType: "alarm",
		EntityID:   "alarm-1",
		FromStatus: 1,
		ToStatus:   2,
		Ts:         1000,
		NodeID:     "node-a",
		Inputs:     map[string]any{"rule_id": "rule-7"},
	}
	if err := l.Validate(d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Valid {
		t.Error("expected decision to be marked valid")
	}
	if d.DecisionHash == "" {
		t.Error("expected a decision hash to be stamped")
	}
	if d.ParentHash != "" {
		t.Errorf("expected the first decision's parent hash to be empty, got %q", d.ParentHash)
	}
}

func TestValidateChainsParentHashAcrossDecisions(t *testing.T) {
	l := NewLedger(zap.NewNop(), false)
	first := &Decision{EntityType: "alarm", EntityID: "a1", FromStatus: 1, ToStatus: 2, Ts: 1000, Inputs: map[string]any{"x": 1}}
	if err := l.Validate(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := &Decision{EntityType: "alarm", EntityID: "a1", FromStatus: 2, ToStatus: 3, Ts: 2000, Inputs: map[string]any{"x": 2}}
	if err := l.Validate(second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ParentHash != first.DecisionHash {
		t.Errorf("expected second decision's parent hash %q to equal first's hash %q", second.ParentHash, first.DecisionHash)
	}
}

func TestValidateRejectsDisallowedTransition(t *testing.T) {
	l := NewLedger(zap.NewNop(), false)
	d := &Decision{EntityType: "alarm", EntityID: "a1", FromStatus: 2, ToStatus: 1, Ts: 1000, Inputs: map[string]any{"x": 1}}
	err := l.Validate(d)
	if err == nil {
		t.Fatal("expected an error for an Acknowledged -> Open downgrade")
	}
	var v *Violation
	if !errors.As(err, &v) || v.Type != ViolationInvalidTransition {
		t.Errorf("expected ViolationInvalidTransition, got %v", err)
	}
	if d.Valid {
		t.Error("expected decision to remain unvalidated")
	}
}

func TestValidateRejectsNonMonotonicTime(t *testing.T) {
	l := NewLedger(zap.NewNop(), false)
	first := &Decision{EntityType: "segment", EntityID: "s1", FromStatus: 1, ToStatus: 2, Ts: 5000, Inputs: map[string]any{"x": 1}}
	if err := l.Validate(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := &Decision{EntityType: "segment", EntityID: "s2", FromStatus: 1, ToStatus: 3, Ts: 4000, Inputs: map[string]any{"x": 1}}
	err := l.Validate(second)
	var v *Violation
	if !errors.As(err, &v) || v.Type != ViolationNonMonotonicTime {
		t.Errorf("expected ViolationNonMonotonicTime, got %v", err)
	}
}

func TestValidateRejectsMissingInputs(t *testing.T) {
	l := NewLedger(zap.NewNop(), false)
	d := &Decision{EntityType: "segment", EntityID: "s1", FromStatus: 1, ToStatus: 2, Ts: 1000}
	err := l.Validate(d)
	var v *Violation
	if !errors.As(err, &v) || v.Type != ViolationMissingContext {
		t.Errorf("expected ViolationMissingContext, got %v", err)
	}
}

func TestValidateRejectsUnknownEntityType(t *testing.T) {
	l := NewLedger(zap.NewNop(), false)
	d := &Decision{EntityType: "widget", EntityID: "w1", FromStatus: 1, ToStatus: 2, Ts: 1000, Inputs: map[string]any{"x": 1}}
	err := l.Validate(d)
	var v *Violation
	if !errors.As(err, &v) || v.Type != ViolationUnknownEntityType {
		t.Errorf("expected ViolationUnknownEntityType, got %v", err)
	}
}

func TestValidateTracksStats(t *testing.T) {
	l := NewLedger(zap.NewNop(), false)
	good := &Decision{EntityType: "alarm", EntityID: "a1", FromStatus: 1, ToStatus: 3, Ts: 1000, Inputs: map[string]any{"x": 1}}
	if err := l.Validate(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := &Decision{EntityType: "alarm", EntityID: "a1", FromStatus: 3, ToStatus: 1, Ts: 2000, Inputs: map[string]any{"x": 1}}
	_ = l.Validate(bad)

	stats := l.GetStats()
	if stats.VerifiedCount != 1 {
		t.Errorf("expected 1 verified decision, got %d", stats.VerifiedCount)
	}
	if stats.ViolationCount != 1 {
		t.Errorf("expected 1 violation, got %d", stats.ViolationCount)
	}
	if stats.LastHash != good.DecisionHash {
		t.Errorf("expected last hash to reflect the last verified decision, not the rejected one")
	}
}

func TestValidateSameInputsProduceSameHash(t *testing.T) {
	l1 := NewLedger(zap.NewNop(), false)
	l2 := NewLedger(zap.NewNop(), false)
	d1 := &Decision{EntityType: "alarm", EntityID: "a1", FromStatus: 1, ToStatus: 2, Ts: 1000, NodeID: "n1", Inputs: map[string]any{"rule_id": "r1"}}
	d2 := &Decision{EntityType: "alarm", EntityID: "a1", FromStatus: 1, ToStatus: 2, Ts: 1000, NodeID: "n1", Inputs: map[string]any{"rule_id": "r1"}}
	if err := l1.Validate(d1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l2.Validate(d2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d1.DecisionHash != d2.DecisionHash {
		t.Errorf("expected identical inputs to produce identical hashes, got %q vs %q", d1.DecisionHash, d2.DecisionHash)
	}
}

func TestStrictModePanicsOnViolation(t *testing.T) {
	l := NewLedger(zap.NewNop(), true)
	defer func() {
		if recover() == nil {
			t.Error("expected strict mode to panic on a violation")
		}
	}()
	_ = l.Validate(&Decision{EntityType: "alarm", EntityID: "a1", FromStatus: 3, ToStatus: 1, Ts: 1000, Inputs: map[string]any{"x": 1}})
}
