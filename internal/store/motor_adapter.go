package store

import (
	"context"
	"math"

	"github.com/leopark123/intellimaint-pro/internal/motor"
)

// MotorTelemetryAdapter exposes TelemetryStore as motor.TelemetrySource,
// the same live-query-wrapper shape TagValuesAdapter uses for
// health.TagSource.
type MotorTelemetryAdapter struct {
	telemetry TelemetryStore
}

func NewMotorTelemetryAdapter(telemetry TelemetryStore) *MotorTelemetryAdapter {
	return &MotorTelemetryAdapter{telemetry: telemetry}
}

func (a *MotorTelemetryAdapter) RecentValues(ctx context.Context, deviceID, tagID string, since int64) ([]motor.TagSample, error) {
	result, err := a.telemetry.Query(ctx, HistoryQuery{
		DeviceID: deviceID,
		TagID:    tagID,
		StartTs:  since,
		EndTs:    math.MaxInt64,
		Sort:     SortAsc,
	})
	if err != nil {
		return nil, err
	}
	out := make([]motor.TagSample, 0, len(result.Items))
	for _, p := range result.Items {
		v, ok := p.Value.AsFloat64()
		if !ok {
			continue
		}
		out = append(out, motor.TagSample{Ts: p.Ts, Value: v})
	}
	return out, nil
}
