package motor

import (
	"math"
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
)

func testLearnerConfig() config.DynamicBaselineConfig {
	return config.DynamicBaselineConfig{
		IncrementalWeight:      0.1,
		AnomalyFilterThreshold: 3.0,
		MinSampleCount:         30,
		AgingFactor:            0.01,
		ReservoirSize:          2000,
	}
}

func TestLearnBootstrapsFromFirstBatch(t *testing.T) {
	l := NewLearner(testLearnerConfig())
	profile := l.Learn("inst-1", "run", model.ParamCurrent, []float64{10, 10, 10, 10}, 1000)
	if profile.Mean != 10 {
		t.Errorf("expected bootstrap mean 10, got %v", profile.Mean)
	}
	if profile.SampleCount != 4 {
		t.Errorf("expected sample count 4, got %d", profile.SampleCount)
	}
	if profile.Version != 1 {
		t.Errorf("expected version 1 after first learn, got %d", profile.Version)
	}
}

func TestLearnBlendsIncrementallyAfterBootstrap(t *testing.T) {
	l := NewLearner(testLearnerConfig())
	l.Learn("inst-1", "run", model.ParamCurrent, []float64{10, 10, 10, 10}, 1000)
	profile := l.Learn("inst-1", "run", model.ParamCurrent, []float64{20, 20, 20, 20}, 2000)

	// w=0.1: mean' = 10 + 0.1*(20-10) = 11
	want := 10 + 0.1*(20-10)
	if math.Abs(profile.Mean-want) > 1e-9 {
		t.Errorf("expected blended mean %v, got %v", want, profile.Mean)
	}
	if profile.Version != 2 {
		t.Errorf("expected version 2, got %d", profile.Version)
	}
}

func TestLearnRejectsOutliersAfterMinSampleCount(t *testing.T) {
	cfg := testLearnerConfig()
	cfg.MinSampleCount = 4
	l := NewLearner(cfg)
	// Bootstrap with a tight cluster so variance is small and nonzero.
	l.Learn("inst-1", "run", model.ParamCurrent, []float64{10, 10.1, 9.9, 10, 10.1, 9.9}, 1000)
	before := l.Learn("inst-1", "run", model.ParamCurrent, []float64{10, 10}, 2000)

	// A wild outlier far beyond 3 sigma should be rejected entirely.
	after := l.Learn("inst-1", "run", model.ParamCurrent, []float64{9999}, 3000)
	if after.SampleCount != before.SampleCount {
		t.Errorf("expected outlier to be rejected, sample count changed from %d to %d", before.SampleCount, after.SampleCount)
	}
	if after.Mean != before.Mean {
		t.Errorf("expected mean unchanged after outlier rejection, got %v -> %v", before.Mean, after.Mean)
	}
}

func TestLearnAgesVarianceOverElapsedDays(t *testing.T) {
	cfg := testLearnerConfig()
	cfg.AgingFactor = 0.5
	l := NewLearner(cfg)
	const firstTs = int64(1000)
	l.Learn("inst-1", "run", model.ParamCurrent, []float64{8, 9, 10, 11, 12}, firstTs)
	st := l.stateFor("inst-1", "run", model.ParamCurrent)
	varianceBeforeAging := st.variance

	// 2 days later, with a batch matching the current mean so the
	// incremental blend itself doesn't move the variance much, aging
	// should have visibly shrunk it first.
	twoDaysLater := firstTs + int64(2*msPerDay)
	l.Learn("inst-1", "run", model.ParamCurrent, []float64{st.mean}, twoDaysLater)
	if st.variance >= varianceBeforeAging {
		t.Errorf("expected variance to shrink after aging, before=%v after=%v", varianceBeforeAging, st.variance)
	}
}

func TestLearnTracksMinMaxAndPercentiles(t *testing.T) {
	l := NewLearner(testLearnerConfig())
	var samples []float64
	for i := 1; i <= 100; i++ {
		samples = append(samples, float64(i))
	}
	profile := l.Learn("inst-1", "run", model.ParamCurrent, samples, 1000)
	if profile.Min != 1 || profile.Max != 100 {
		t.Errorf("expected min/max 1/100, got %v/%v", profile.Min, profile.Max)
	}
	if profile.P50 < 40 || profile.P50 > 60 {
		t.Errorf("expected median roughly in the middle of 1..100, got %v", profile.P50)
	}
}

func TestLearnEmptyBatchLeavesProfileUnchanged(t *testing.T) {
	l := NewLearner(testLearnerConfig())
	l.Learn("inst-1", "run", model.ParamCurrent, []float64{10, 11, 12}, 1000)
	before := l.stateFor("inst-1", "run", model.ParamCurrent).version
	l.Learn("inst-1", "run", model.ParamCurrent, nil, 2000)
	after := l.stateFor("inst-1", "run", model.ParamCurrent).version
	if before != after {
		t.Errorf("expected version unchanged for empty batch, got %d -> %d", before, after)
	}
}
