package retention

import "testing"

func TestGuardedCutoffNeverExceedsAggregatedBoundary(t *testing.T) {
	if got := guardedCutoff(100, 50); got != 50 {
		t.Errorf("expected guard to clamp to the aggregated boundary, got %d", got)
	}
	if got := guardedCutoff(30, 50); got != 30 {
		t.Errorf("expected the smaller wanted cutoff to pass through unclamped, got %d", got)
	}
}

func TestCompletedBucketCutoffExcludesInProgressBucket(t *testing.T) {
	// now is mid-bucket; the in-progress bucket must not be included.
	if got := completedBucketCutoff(125_000, 60_000); got != 120_000 {
		t.Errorf("expected 120000 (2 completed minute buckets), got %d", got)
	}
	if got := completedBucketCutoff(60_000, 60_000); got != 60_000 {
		t.Errorf("expected an exact boundary to count as completed, got %d", got)
	}
}

func TestShouldVacuumThreshold(t *testing.T) {
	if shouldVacuum(10_000, 10_000) {
		t.Error("expected exactly-at-threshold to not trigger vacuum (strictly greater than)")
	}
	if !shouldVacuum(10_001, 10_000) {
		t.Error("expected one-over-threshold to trigger vacuum")
	}
	if shouldVacuum(1, 0) {
		t.Error("expected a small deletion count to stay under the 10000 fallback default")
	}
	if !shouldVacuum(10_001, 0) {
		t.Error("expected a non-positive configured threshold to fall back to the 10000 default")
	}
}
