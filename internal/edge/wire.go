package edge

import (
	"encoding/json"
	"fmt"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// wirePoint is the external JSON shape for a TelemetryPoint, kept
// compatible with the ingest wire format while the in-process
// representation stays the tagged-union model.Value (design note in
// spec.md §9).
type wirePoint struct {
	DeviceID string  `json:"device_id"`
	TagID    string  `json:"tag_id"`
	Ts       int64   `json:"ts"`
	Seq      int64   `json:"seq"`
	ValueType string `json:"value_type"`
	Value    any     `json:"value"`
	Quality  int32   `json:"quality"`
	Protocol string  `json:"protocol,omitempty"`
	Source   string  `json:"source,omitempty"`
}

func toWire(p model.TelemetryPoint) wirePoint {
	w := wirePoint{
		DeviceID:  p.DeviceID,
		TagID:     p.TagID,
		Ts:        p.Ts,
		Seq:       p.Seq,
		ValueType: p.Value.Type.String(),
		Quality:   p.Quality,
		Protocol:  p.Protocol,
		Source:    p.Source,
	}
	switch p.Value.Type {
	case model.ValueTypeBool:
		w.Value = p.Value.Bool
	case model.ValueTypeString:
		w.Value = p.Value.String
	case model.ValueTypeByteArray:
		w.Value = p.Value.ByteArray
	case model.ValueTypeDateTime:
		w.Value = p.Value.DateTime
	default:
		if f, ok := p.Value.AsFloat64(); ok {
			w.Value = f
		}
	}
	return w
}

// encodeBatch renders a batch of points as the ingest wire format: a
// JSON array of TelemetryPoint objects.
func encodeBatch(points []model.TelemetryPoint) ([]byte, error) {
	wire := make([]wirePoint, len(points))
	for i, p := range points {
		wire[i] = toWire(p)
	}
	return json.Marshal(wire)
}

// fromWire converts a decoded wirePoint back into the tagged-union
// model.TelemetryPoint, the receiving side of the ingest endpoint.
func fromWire(w wirePoint) (model.TelemetryPoint, error) {
	vt, ok := model.ParseValueType(w.ValueType)
	if !ok {
		return model.TelemetryPoint{}, fmt.Errorf("edge: unknown value_type %q", w.ValueType)
	}

	val := model.Value{Type: vt}
	switch vt {
	case model.ValueTypeBool:
		b, _ := w.Value.(bool)
		val.Bool = b
	case model.ValueTypeString:
		s, _ := w.Value.(string)
		val.String = s
	case model.ValueTypeDateTime:
		val.DateTime = int64(asFloat(w.Value))
	case model.ValueTypeByteArray:
		switch v := w.Value.(type) {
		case string:
			val.ByteArray = []byte(v)
		case []byte:
			val.ByteArray = v
		}
	case model.ValueTypeInt8:
		val.Int8 = int8(asFloat(w.Value))
	case model.ValueTypeInt16:
		val.Int16 = int16(asFloat(w.Value))
	case model.ValueTypeInt32:
		val.Int32 = int32(asFloat(w.Value))
	case model.ValueTypeInt64:
		val.Int64 = int64(asFloat(w.Value))
	case model.ValueTypeUInt8:
		val.UInt8 = uint8(asFloat(w.Value))
	case model.ValueTypeUInt16:
		val.UInt16 = uint16(asFloat(w.Value))
	case model.ValueTypeUInt32:
		val.UInt32 = uint32(asFloat(w.Value))
	case model.ValueTypeUInt64:
		val.UInt64 = uint64(asFloat(w.Value))
	case model.ValueTypeFloat32:
		val.Float32 = float32(asFloat(w.Value))
	case model.ValueTypeFloat64:
		val.Float64 = asFloat(w.Value)
	}

	return model.TelemetryPoint{
		DeviceID: w.DeviceID,
		TagID:    w.TagID,
		Ts:       w.Ts,
		Seq:      w.Seq,
		Value:    val,
		Quality:  w.Quality,
		Protocol: w.Protocol,
		Source:   w.Source,
	}, nil
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

// DecodeBatch parses the ingest wire format (a JSON array of
// TelemetryPoint objects) back into model.TelemetryPoints. Exported so
// internal/ingest's HTTP handler can decode POST /api/telemetry/batch
// bodies without duplicating the wire schema.
func DecodeBatch(data []byte) ([]model.TelemetryPoint, error) {
	var wire []wirePoint
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("edge: decode batch: %w", err)
	}
	points := make([]model.TelemetryPoint, 0, len(wire))
	for _, w := range wire {
		p, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}
