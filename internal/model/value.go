// Package model defines the shared telemetry data types: typed values,
// points, and the configuration entities (devices, tags, rules) that the
// rest of IntelliMaint's components read and produce.
package model

import "fmt"

// ValueType discriminates which slot of a Value is populated.
type ValueType int

const (
	ValueTypeUnspecified ValueType = iota
	ValueTypeBool
	ValueTypeInt8
	ValueTypeInt16
	ValueTypeInt32
	ValueTypeInt64
	ValueTypeUInt8
	ValueTypeUInt16
	ValueTypeUInt32
	ValueTypeUInt64
	ValueTypeFloat32
	ValueTypeFloat64
	ValueTypeString
	ValueTypeByteArray
	ValueTypeDateTime
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeBool:
		return "Bool"
	case ValueTypeInt8:
		return "Int8"
	case ValueTypeInt16:
		return "Int16"
	case ValueTypeInt32:
		return "Int32"
	case ValueTypeInt64:
		return "Int64"
	case ValueTypeUInt8:
		return "UInt8"
	case ValueTypeUInt16:
		return "UInt16"
	case ValueTypeUInt32:
		return "UInt32"
	case ValueTypeUInt64:
		return "UInt64"
	case ValueTypeFloat32:
		return "Float32"
	case ValueTypeFloat64:
		return "Float64"
	case ValueTypeString:
		return "String"
	case ValueTypeByteArray:
		return "ByteArray"
	case ValueTypeDateTime:
		return "DateTime"
	default:
		return "Unspecified"
	}
}

// ParseValueType parses a ValueType's String() rendering back into its
// constant, for decoding the wire format. ok is false for an unknown
// name.
func ParseValueType(s string) (ValueType, bool) {
	switch s {
	case "Bool":
		return ValueTypeBool, true
	case "Int8":
		return ValueTypeInt8, true
	case "Int16":
		return ValueTypeInt16, true
	case "Int32":
		return ValueTypeInt32, true
	case "Int64":
		return ValueTypeInt64, true
	case "UInt8":
		return ValueTypeUInt8, true
	case "UInt16":
		return ValueTypeUInt16, true
	case "UInt32":
		return ValueTypeUInt32, true
	case "UInt64":
		return ValueTypeUInt64, true
	case "Float32":
		return ValueTypeFloat32, true
	case "Float64":
		return ValueTypeFloat64, true
	case "String":
		return ValueTypeString, true
	case "ByteArray":
		return ValueTypeByteArray, true
	case "DateTime":
		return ValueTypeDateTime, true
	default:
		return ValueTypeUnspecified, false
	}
}

// Value is a tagged union over the telemetry value domain. Exactly one
// field matching Type is meaningful; all others are zero. IsNumeric and
// AsFloat64 give callers a single numeric view without a type switch at
// every call site, since most of the analytics pipeline treats telemetry
// as float64 regardless of wire type.
type Value struct {
	Type ValueType

	Bool      bool
	Int8      int8
	Int16     int16
	Int32     int32
	Int64     int64
	UInt8     uint8
	UInt16    uint16
	UInt32    uint32
	UInt64    uint64
	Float32   float32
	Float64   float64
	String    string
	ByteArray []byte
	DateTime  int64 // epoch millis
}

func BoolValue(v bool) Value       { return Value{Type: ValueTypeBool, Bool: v} }
func Int8Value(v int8) Value       { return Value{Type: ValueTypeInt8, Int8: v} }
func Int16Value(v int16) Value     { return Value{Type: ValueTypeInt16, Int16: v} }
func Int32Value(v int32) Value     { return Value{Type: ValueTypeInt32, Int32: v} }
func Int64Value(v int64) Value     { return Value{Type: ValueTypeInt64, Int64: v} }
func UInt8Value(v uint8) Value     { return Value{Type: ValueTypeUInt8, UInt8: v} }
func UInt16Value(v uint16) Value   { return Value{Type: ValueTypeUInt16, UInt16: v} }
func UInt32Value(v uint32) Value   { return Value{Type: ValueTypeUInt32, UInt32: v} }
func UInt64Value(v uint64) Value   { return Value{Type: ValueTypeUInt64, UInt64: v} }
func Float32Value(v float32) Value { return Value{Type: ValueTypeFloat32, Float32: v} }
func Float64Value(v float64) Value { return Value{Type: ValueTypeFloat64, Float64: v} }
func StringValue(v string) Value   { return Value{Type: ValueTypeString, String: v} }
func BytesValue(v []byte) Value    { return Value{Type: ValueTypeByteArray, ByteArray: v} }
func DateTimeValue(v int64) Value  { return Value{Type: ValueTypeDateTime, DateTime: v} }

// IsNumeric reports whether the value's type participates in numeric
// aggregation (deadband, outlier detection, statistics).
func (v Value) IsNumeric() bool {
	switch v.Type {
	case ValueTypeInt8, ValueTypeInt16, ValueTypeInt32, ValueTypeInt64,
		ValueTypeUInt8, ValueTypeUInt16, ValueTypeUInt32, ValueTypeUInt64,
		ValueTypeFloat32, ValueTypeFloat64:
		return true
	default:
		return false
	}
}

// AsFloat64 returns the numeric interpretation of v, or (0, false) if v is
// not numeric (bool/string/bytes/datetime are excluded deliberately; a
// caller that wants to treat Bool as 0/1 must do so explicitly).
func (v Value) AsFloat64() (float64, bool) {
	switch v.Type {
	case ValueTypeInt8:
		return float64(v.Int8), true
	case ValueTypeInt16:
		return float64(v.Int16), true
	case ValueTypeInt32:
		return float64(v.Int32), true
	case ValueTypeInt64:
		return float64(v.Int64), true
	case ValueTypeUInt8:
		return float64(v.UInt8), true
	case ValueTypeUInt16:
		return float64(v.UInt16), true
	case ValueTypeUInt32:
		return float64(v.UInt32), true
	case ValueTypeUInt64:
		return float64(v.UInt64), true
	case ValueTypeFloat32:
		return float64(v.Float32), true
	case ValueTypeFloat64:
		return v.Float64, true
	default:
		return 0, false
	}
}

// Populated reports whether v.Type is set (not ValueTypeUnspecified); it
// does not inspect the contents of the slot matching v.Type. IsValid
// applies the same Type check to a point's value.
func (v Value) Populated() bool {
	return v.Type != ValueTypeUnspecified
}

// TelemetryPoint is a single typed tag reading. The primary key is
// (DeviceID, TagID, Ts, Seq).
type TelemetryPoint struct {
	DeviceID string
	TagID    string
	Ts       int64 // epoch millis, UTC
	Seq      int64 // monotonic per-process tiebreaker within the same ts
	Value    Value
	Quality  int32 // OPC-style; 192 = Good
	Protocol string
	Source   string
}

// QualityGood is the OPC-style "Good" quality code.
const QualityGood int32 = 192

// IsValid reports whether p carries exactly one populated value slot
// matching p.Value.Type. Because Value is a Go tagged union (only one
// field is ever meaningful for a given Type), this reduces to checking
// that Type itself was set.
func (p TelemetryPoint) IsValid() bool {
	return p.Value.Type != ValueTypeUnspecified
}

// Key returns the composite primary key as a comparable value, usable as
// a map key for in-memory dedup.
func (p TelemetryPoint) Key() PointKey {
	return PointKey{DeviceID: p.DeviceID, TagID: p.TagID, Ts: p.Ts, Seq: p.Seq}
}

// PointKey is the comparable (device_id, tag_id, ts, seq) primary key.
type PointKey struct {
	DeviceID string
	TagID    string
	Ts       int64
	Seq      int64
}

func (k PointKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%d", k.DeviceID, k.TagID, k.Ts, k.Seq)
}

// SeqCounter assigns monotonic per-process sequence numbers, used to
// break ties between points sharing a millisecond-resolution timestamp.
// Zero value is ready to use.
type SeqCounter struct {
	next int64
}

// Next returns the next sequence value, starting at 0.
func (c *SeqCounter) Next() int64 {
	v := c.next
	c.next++
	return v
}
