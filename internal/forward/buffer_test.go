package forward

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

func testPoints(n int) []model.TelemetryPoint {
	pts := make([]model.TelemetryPoint, n)
	for i := 0; i < n; i++ {
		pts[i] = model.TelemetryPoint{
			DeviceID: "dev-1",
			TagID:    "tag-1",
			Ts:       int64(1000 + i),
			Seq:      int64(i),
			Value:    model.Float64Value(float64(i)),
			Quality:  model.QualityGood,
		}
	}
	return pts
}

func openTestBuffer(t *testing.T) *Buffer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forward.db")
	buf, bdb, err := Open(path, 10, 7, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = bdb.Close() })
	return buf
}

func TestSpillAndReplayPreservesOrder(t *testing.T) {
	buf := openTestBuffer(t)
	ctx := context.Background()

	if err := buf.Spill(ctx, testPoints(3)); err != nil {
		t.Fatalf("Spill batch 1: %v", err)
	}
	if err := buf.Spill(ctx, testPoints(2)); err != nil {
		t.Fatalf("Spill batch 2: %v", err)
	}

	id1, pts1, ok, err := buf.NextPending()
	if err != nil || !ok {
		t.Fatalf("NextPending (first): ok=%v err=%v", ok, err)
	}
	if len(pts1) != 3 {
		t.Errorf("expected first batch to have 3 points (FIFO), got %d", len(pts1))
	}
	if err := buf.Acknowledge(id1); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	id2, pts2, ok, err := buf.NextPending()
	if err != nil || !ok {
		t.Fatalf("NextPending (second): ok=%v err=%v", ok, err)
	}
	if len(pts2) != 2 {
		t.Errorf("expected second batch to have 2 points, got %d", len(pts2))
	}
	if err := buf.Acknowledge(id2); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	_, _, ok, err = buf.NextPending()
	if err != nil {
		t.Fatalf("NextPending (empty): %v", err)
	}
	if ok {
		t.Errorf("expected buffer to be empty after both batches acknowledged")
	}
}

func TestPendingPointsCounts(t *testing.T) {
	buf := openTestBuffer(t)
	ctx := context.Background()

	if err := buf.Spill(ctx, testPoints(5)); err != nil {
		t.Fatalf("Spill: %v", err)
	}
	if err := buf.Spill(ctx, testPoints(7)); err != nil {
		t.Fatalf("Spill: %v", err)
	}

	pending, err := buf.PendingPoints()
	if err != nil {
		t.Fatalf("PendingPoints: %v", err)
	}
	if pending != 12 {
		t.Errorf("expected 12 pending points, got %d", pending)
	}
}

func TestAcknowledgeUnknownIDIsNoop(t *testing.T) {
	buf := openTestBuffer(t)
	if err := buf.Acknowledge(9999); err != nil {
		t.Errorf("Acknowledge of unknown id should be a no-op, got error: %v", err)
	}
}
