package alarm

import (
	"context"
	"fmt"
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

type memStore struct {
	records map[string]model.AlarmRecord
	groups  map[string]model.AlarmGroup
	links   map[string]string // alarmID -> groupID
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]model.AlarmRecord),
		groups:  make(map[string]model.AlarmGroup),
		links:   make(map[string]string),
	}
}

func (m *memStore) InsertRecord(ctx context.Context, rec model.AlarmRecord) error {
	m.records[rec.AlarmID] = rec
	return nil
}

func (m *memStore) GetOpenGroup(ctx context.Context, deviceID, ruleID string) (model.AlarmGroup, bool, error) {
	for _, g := range m.groups {
		if g.DeviceID == deviceID && g.RuleID == ruleID && g.Status != model.AlarmStatusClosed {
			return g, true, nil
		}
	}
	return model.AlarmGroup{}, false, nil
}

func (m *memStore) UpsertGroup(ctx context.Context, group model.AlarmGroup) error {
	m.groups[group.GroupID] = group
	return nil
}

func (m *memStore) LinkRecordToGroup(ctx context.Context, alarmID, groupID string) error {
	m.links[alarmID] = groupID
	return nil
}

func (m *memStore) GetRecord(ctx context.Context, alarmID string) (model.AlarmRecord, bool, error) {
	rec, ok := m.records[alarmID]
	return rec, ok, nil
}

func (m *memStore) UpdateRecord(ctx context.Context, rec model.AlarmRecord) error {
	m.records[rec.AlarmID] = rec
	return nil
}

func (m *memStore) GetGroup(ctx context.Context, groupID string) (model.AlarmGroup, bool, error) {
	g, ok := m.groups[groupID]
	return g, ok, nil
}

func (m *memStore) UpdateGroup(ctx context.Context, group model.AlarmGroup) error {
	m.groups[group.GroupID] = group
	return nil
}

func (m *memStore) RecordsInGroup(ctx context.Context, groupID string) ([]model.AlarmRecord, error) {
	var out []model.AlarmRecord
	for alarmID, gid := range m.links {
		if gid == groupID {
			out = append(out, m.records[alarmID])
		}
	}
	return out, nil
}

func TestAggregateCreatesGroupThenAppends(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)
	ctx := context.Background()

	rec1 := model.AlarmRecord{AlarmID: "a1", DeviceID: "dev-1", Code: "R1", Ts: 3000, Severity: 3, Status: model.AlarmStatusOpen}
	if err := agg.Aggregate(ctx, rec1); err != nil {
		t.Fatalf("Aggregate rec1: %v", err)
	}

	group, ok, err := store.GetOpenGroup(ctx, "dev-1", "R1")
	if err != nil || !ok {
		t.Fatalf("expected open group to exist: ok=%v err=%v", ok, err)
	}
	if group.AlarmCount != 1 || group.Severity != 3 {
		t.Errorf("expected alarm_count=1 severity=3, got count=%d severity=%d", group.AlarmCount, group.Severity)
	}

	rec2 := model.AlarmRecord{AlarmID: "a2", DeviceID: "dev-1", Code: "R1", Ts: 10000, Severity: 2, Status: model.AlarmStatusOpen}
	if err := agg.Aggregate(ctx, rec2); err != nil {
		t.Fatalf("Aggregate rec2: %v", err)
	}

	group, _, _ = store.GetOpenGroup(ctx, "dev-1", "R1")
	if group.AlarmCount != 2 {
		t.Errorf("expected alarm_count=2 after second firing, got %d", group.AlarmCount)
	}
	if group.LastOccurred != 10000 {
		t.Errorf("expected last_occurred=10000, got %d", group.LastOccurred)
	}
	if group.Severity != 3 {
		t.Errorf("severity must never downgrade: expected 3 (max of 3,2), got %d", group.Severity)
	}
}

func TestAckThenAckIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.records["a1"] = model.AlarmRecord{AlarmID: "a1", Status: model.AlarmStatusOpen}
	lc := NewLifecycle(store)
	ctx := context.Background()

	if err := lc.Ack(ctx, "a1", "op", "note", 100); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := lc.Ack(ctx, "a1", "op", "note", 200); err != nil {
		t.Fatalf("Ack again: %v", err)
	}
	rec, _, _ := store.GetRecord(ctx, "a1")
	if rec.Status != model.AlarmStatusAcknowledged {
		t.Errorf("expected Acknowledged, got %v", rec.Status)
	}
}

func TestCloseIsTerminalAndIdempotent(t *testing.T) {
	store := newMemStore()
	store.records["a1"] = model.AlarmRecord{AlarmID: "a1", Status: model.AlarmStatusOpen}
	lc := NewLifecycle(store)
	ctx := context.Background()

	if err := lc.Close(ctx, "a1", 100); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := lc.Close(ctx, "a1", 200); err != nil {
		t.Fatalf("Close again: %v", err)
	}
	if err := lc.Ack(ctx, "a1", "op", "", 300); err == nil {
		t.Errorf("Ack on a Closed record must be rejected")
	}
}

type fakeAuditor struct {
	reject bool
	calls  []string
}

func (f *fakeAuditor) Record(entityType, entityID string, fromStatus, toStatus int, now int64, inputs map[string]any) error {
	f.calls = append(f.calls, entityID)
	if f.reject {
		return fmt.Errorf("transition rejected")
	}
	return nil
}

func TestAckRecordsAuditedTransition(t *testing.T) {
	store := newMemStore()
	store.records["a1"] = model.AlarmRecord{AlarmID: "a1", Status: model.AlarmStatusOpen}
	auditor := &fakeAuditor{}
	lc := NewLifecycle(store).WithAuditor(auditor)
	ctx := context.Background()

	if err := lc.Ack(ctx, "a1", "op", "note", 100); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if len(auditor.calls) != 1 || auditor.calls[0] != "a1" {
		t.Fatalf("expected one audit call for a1, got %v", auditor.calls)
	}
}

func TestAckRejectedByAuditorLeavesRecordUnchanged(t *testing.T) {
	store := newMemStore()
	store.records["a1"] = model.AlarmRecord{AlarmID: "a1", Status: model.AlarmStatusOpen}
	lc := NewLifecycle(store).WithAuditor(&fakeAuditor{reject: true})
	ctx := context.Background()

	if err := lc.Ack(ctx, "a1", "op", "note", 100); err == nil {
		t.Fatalf("expected Ack to fail when the auditor rejects the transition")
	}
	rec, _, _ := store.GetRecord(ctx, "a1")
	if rec.Status != model.AlarmStatusOpen {
		t.Errorf("rejected ack must not mutate status, got %v", rec.Status)
	}
}

func TestCloseGroupClosesNonClosedChildren(t *testing.T) {
	store := newMemStore()
	store.groups["g1"] = model.AlarmGroup{GroupID: "g1", Status: model.AlarmStatusOpen}
	store.records["a1"] = model.AlarmRecord{AlarmID: "a1", Status: model.AlarmStatusOpen}
	store.records["a2"] = model.AlarmRecord{AlarmID: "a2", Status: model.AlarmStatusClosed}
	store.links["a1"] = "g1"
	store.links["a2"] = "g1"

	lc := NewLifecycle(store)
	ctx := context.Background()
	if err := lc.CloseGroup(ctx, "g1", 100); err != nil {
		t.Fatalf("CloseGroup: %v", err)
	}

	g, _, _ := store.GetGroup(ctx, "g1")
	if g.Status != model.AlarmStatusClosed {
		t.Errorf("expected group Closed, got %v", g.Status)
	}
	rec1, _, _ := store.GetRecord(ctx, "a1")
	if rec1.Status != model.AlarmStatusClosed {
		t.Errorf("expected a1 Closed, got %v", rec1.Status)
	}
}
