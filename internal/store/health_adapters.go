package store

import (
	"context"
	"time"

	"github.com/leopark123/intellimaint-pro/internal/health"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

// TagValuesAdapter exposes a PostgresStore's telemetry history as
// health.TagSource, translating a device/tag window query into the
// plain (ts, value) pairs the health engine's windowed scoring works
// against.
type TagValuesAdapter struct {
	telemetry TelemetryStore
}

func NewTagValuesAdapter(telemetry TelemetryStore) *TagValuesAdapter {
	return &TagValuesAdapter{telemetry: telemetry}
}

func (a *TagValuesAdapter) TagValues(ctx context.Context, deviceID, tagID string, startTs, endTs int64) ([]statutil.TimedValue, error) {
	result, err := a.telemetry.Query(ctx, HistoryQuery{
		DeviceID: deviceID,
		TagID:    tagID,
		StartTs:  startTs,
		EndTs:    endTs,
		Sort:     SortAsc,
		Limit:    0,
	})
	if err != nil {
		return nil, err
	}

	out := make([]statutil.TimedValue, 0, len(result.Items))
	for _, p := range result.Items {
		v, ok := p.Value.AsFloat64()
		if !ok {
			continue
		}
		out = append(out, statutil.TimedValue{Ts: p.Ts, Value: v})
	}
	return out, nil
}

// AlarmWindowSource exposes AlarmStore as health.AlarmSource, listing
// alarms open at any point during [windowStart, windowEnd].
type AlarmWindowSource struct {
	alarms       *AlarmStore
	queryTimeout time.Duration
}

func NewAlarmWindowSource(alarms *AlarmStore, queryTimeout time.Duration) *AlarmWindowSource {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &AlarmWindowSource{alarms: alarms, queryTimeout: queryTimeout}
}

func (a *AlarmWindowSource) OpenAlarms(ctx context.Context, deviceID string, windowStart, windowEnd int64) ([]health.OpenAlarmInWindow, error) {
	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()
	rows, err := a.alarms.pool.Query(ctx, `
		SELECT severity, ts FROM alarm_record
		WHERE device_id = $1 AND status <> $2 AND ts <= $3`,
		deviceID, int(model.AlarmStatusClosed), windowEnd)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []health.OpenAlarmInWindow
	for rows.Next() {
		var severity int
		var openedTs int64
		if err := rows.Scan(&severity, &openedTs); err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, health.OpenAlarmInWindow{
			Severity:    severity,
			OpenedTs:    openedTs,
			WindowEndTs: windowEnd,
		})
	}
	return out, classifyErr(rows.Err(), 0)
}
