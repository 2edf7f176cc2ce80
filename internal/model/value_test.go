package model

import "testing"

func TestTelemetryPointIsValid(t *testing.T) {
	valid := TelemetryPoint{DeviceID: "d1", TagID: "t1", Ts: 1000, Value: Float64Value(3.14), Quality: QualityGood}
	if !valid.IsValid() {
		t.Errorf("expected point with populated Float64 value to be valid")
	}

	invalid := TelemetryPoint{DeviceID: "d1", TagID: "t1", Ts: 1000}
	if invalid.IsValid() {
		t.Errorf("expected point with no value type to be invalid")
	}
}

func TestValueAsFloat64(t *testing.T) {
	cases := []struct {
		v    Value
		want float64
		ok   bool
	}{
		{Int32Value(42), 42, true},
		{Float32Value(1.5), 1.5, true},
		{UInt64Value(7), 7, true},
		{StringValue("x"), 0, false},
		{BoolValue(true), 0, false},
	}
	for _, c := range cases {
		got, ok := c.v.AsFloat64()
		if ok != c.ok {
			t.Errorf("AsFloat64(%+v) ok = %v, want %v", c.v, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("AsFloat64(%+v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestSeqCounterMonotonic(t *testing.T) {
	var c SeqCounter
	prev := c.Next()
	for i := 0; i < 100; i++ {
		next := c.Next()
		if next <= prev {
			t.Fatalf("SeqCounter not monotonic: prev=%d next=%d", prev, next)
		}
		prev = next
	}
}

func TestPointKeyUniqueness(t *testing.T) {
	p1 := TelemetryPoint{DeviceID: "d1", TagID: "t1", Ts: 1, Seq: 0}
	p2 := TelemetryPoint{DeviceID: "d1", TagID: "t1", Ts: 1, Seq: 1}
	if p1.Key() == p2.Key() {
		t.Errorf("distinct seq must produce distinct keys")
	}
}
