package retention

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/config"
)

type fakeStateStore struct {
	states map[string]int64
}

func (f *fakeStateStore) GetState(ctx context.Context, tableName string) (int64, error) {
	return f.states[tableName], nil
}

func (f *fakeStateStore) SetState(ctx context.Context, tableName string, ts int64) error {
	f.states[tableName] = ts
	return nil
}

type fakeDeleter struct {
	gotCutoff int64
	toDelete  int64
}

func (f *fakeDeleter) DeleteBefore(ctx context.Context, cutoffTs int64) (int64, error) {
	f.gotCutoff = cutoffTs
	return f.toDelete, nil
}

func testCleanupConfig() config.DataCleanupConfig {
	return config.DataCleanupConfig{
		CleanupIntervalHours:     6,
		TelemetryRetentionDays:   7,
		Telemetry1mRetentionDays: 30,
		Telemetry1hRetentionDays: 365,
		VacuumThreshold:          10_000,
	}
}

func TestPlanCleanupGuardsRawDeletesAgainstUnaggregatedData(t *testing.T) {
	cfg := testCleanupConfig()
	now := int64(100) * dayMs

	// aggregation has only progressed to day 50, well before the 7-day
	// retention window's naive cutoff (day 93) -- the guard must win.
	plan := planCleanup(now, cfg, 50*dayMs, 0)
	if plan.RawCutoffTs != 50*dayMs {
		t.Errorf("expected raw cutoff guarded to the aggregation boundary (day 50), got %d", plan.RawCutoffTs)
	}
}

func TestPlanCleanupUsesRetentionWindowWhenAggregationIsCaughtUp(t *testing.T) {
	cfg := testCleanupConfig()
	now := int64(100) * dayMs

	plan := planCleanup(now, cfg, 99*dayMs, 99*dayMs)
	if plan.RawCutoffTs != 93*dayMs {
		t.Errorf("expected the 7-day retention cutoff (day 93) when aggregation is caught up, got %d", plan.RawCutoffTs)
	}
}

func TestCleanupWorkerRunOnceSweepsAllTiersAndExtras(t *testing.T) {
	state := &fakeStateStore{states: map[string]int64{"telemetry_1m": 50 * dayMs, "telemetry_1h": 40 * dayMs}}
	raw := &fakeDeleter{toDelete: 100}
	minute := &fakeDeleter{toDelete: 200}
	hour := &fakeDeleter{toDelete: 300}
	alarms := &fakeDeleter{toDelete: 5}

	vacuumCalled := false
	worker := NewCleanupWorker(testCleanupConfig(), zap.NewNop(), state, raw, minute, hour, func(ctx context.Context) error {
		vacuumCalled = true
		return nil
	})

	res, err := worker.RunOnce(context.Background(), 100*dayMs, []Target{
		{Name: "alarms", Store: alarms, CutoffTs: 70 * dayMs},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalDeleted != 605 {
		t.Errorf("expected total deleted 605, got %d", res.TotalDeleted)
	}
	if res.DeletedExtra["alarms"] != 5 {
		t.Errorf("expected alarms deletion tracked, got %v", res.DeletedExtra)
	}
	if alarms.gotCutoff != 70*dayMs {
		t.Errorf("expected the alarm target's own cutoff to be used unmodified, got %d", alarms.gotCutoff)
	}
	if vacuumCalled {
		t.Error("did not expect vacuum to trigger below threshold (605 < 10000)")
	}
}

func TestCleanupWorkerTriggersVacuumAboveThreshold(t *testing.T) {
	state := &fakeStateStore{states: map[string]int64{}}
	raw := &fakeDeleter{toDelete: 20_000}

	vacuumCalled := false
	worker := NewCleanupWorker(testCleanupConfig(), zap.NewNop(), state, raw, &fakeDeleter{}, &fakeDeleter{}, func(ctx context.Context) error {
		vacuumCalled = true
		return nil
	})

	res, err := worker.RunOnce(context.Background(), 100*dayMs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Vacuumed || !vacuumCalled {
		t.Error("expected vacuum hook to run once total deletions exceed the threshold")
	}
}
