package edge

import (
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

func point(ts int64, v float64) model.TelemetryPoint {
	return model.TelemetryPoint{DeviceID: "d1", TagID: "t1", Ts: ts, Value: model.Float64Value(v)}
}

func TestDeadbandFiltersSmallChange(t *testing.T) {
	f := NewFilter(FilterConfig{
		DefaultDeadband:       1.0,
		ForceUploadIntervalMs: 60_000,
	})

	d1 := f.Apply(point(0, 10.0))
	if !d1.Emit {
		t.Fatal("first sample must always emit")
	}

	d2 := f.Apply(point(1000, 10.5))
	if d2.Emit {
		t.Errorf("change of 0.5 within deadband 1.0 should be filtered")
	}

	d3 := f.Apply(point(2000, 12.0))
	if !d3.Emit {
		t.Errorf("change of 2.0 exceeding deadband 1.0 should emit")
	}
}

func TestForceUploadOverridesDeadband(t *testing.T) {
	f := NewFilter(FilterConfig{
		DefaultDeadband:       100.0,
		ForceUploadIntervalMs: 5000,
	})
	f.Apply(point(0, 10.0))
	d := f.Apply(point(6000, 10.0))
	if !d.Emit {
		t.Errorf("force_upload_interval_ms elapsed should force emission regardless of deadband")
	}
}

func TestBypassDisablesDeadband(t *testing.T) {
	f := NewFilter(FilterConfig{
		DefaultDeadband:       100.0,
		ForceUploadIntervalMs: 60_000,
		PerTag: map[string]TagProcessingConfig{
			"t1": {Bypass: true},
		},
	})
	f.Apply(point(0, 10.0))
	d := f.Apply(point(1000, 10.1))
	if !d.Emit {
		t.Errorf("bypass=true must disable deadband filtering")
	}
}

func TestOutlierDropSuppressesEmission(t *testing.T) {
	f := NewFilter(FilterConfig{
		OutlierSigmaThreshold: 3.0,
		OutlierAction:         OutlierDrop,
	})
	vals := []float64{10.0, 10.2, 9.8, 10.1, 9.9, 10.3, 9.7, 10.0, 10.2, 9.8,
		10.1, 9.9, 10.0, 10.2, 9.8, 10.1, 9.9, 10.0, 10.1, 9.9}
	for i, v := range vals {
		f.Apply(point(int64(i)*1000, v))
	}
	d := f.Apply(point(20000, 1000.0))
	if d.Emit {
		t.Errorf("extreme outlier with OutlierDrop action should not emit")
	}
	if !d.IsOutlier {
		t.Errorf("expected IsOutlier=true")
	}
}
