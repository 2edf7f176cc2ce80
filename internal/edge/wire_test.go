package edge

import (
	"testing"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

func TestEncodeThenDecodeBatchRoundTrips(t *testing.T) {
	points := []model.TelemetryPoint{
		{DeviceID: "d1", TagID: "t1", Ts: 1000, Seq: 0, Value: model.Float64Value(42.5), Quality: model.QualityGood},
		{DeviceID: "d1", TagID: "t2", Ts: 1000, Seq: 1, Value: model.BoolValue(true), Quality: model.QualityGood},
		{DeviceID: "d1", TagID: "t3", Ts: 1000, Seq: 2, Value: model.StringValue("running"), Quality: model.QualityGood},
	}

	data, err := encodeBatch(points)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	decoded, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(decoded) != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), len(decoded))
	}
	for i, p := range points {
		if decoded[i].DeviceID != p.DeviceID || decoded[i].TagID != p.TagID || decoded[i].Ts != p.Ts {
			t.Errorf("point %d: expected key match, got %+v vs %+v", i, decoded[i], p)
		}
		if decoded[i].Value.Type != p.Value.Type {
			t.Errorf("point %d: expected type %v, got %v", i, p.Value.Type, decoded[i].Value.Type)
		}
	}
	if f, _ := decoded[0].Value.AsFloat64(); f != 42.5 {
		t.Errorf("expected decoded float 42.5, got %v", f)
	}
	if !decoded[1].Value.Bool {
		t.Error("expected decoded bool true")
	}
	if decoded[2].Value.String != "running" {
		t.Errorf("expected decoded string \"running\", got %q", decoded[2].Value.String)
	}
}

func TestDecodeBatchRejectsUnknownValueType(t *testing.T) {
	_, err := DecodeBatch([]byte(`[{"device_id":"d1","tag_id":"t1","ts":1,"seq":0,"value_type":"Nonsense","value":1}]`))
	if err == nil {
		t.Error("expected an error for an unrecognized value_type")
	}
}
