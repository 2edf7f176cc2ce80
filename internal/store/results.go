package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/health"
	"github.com/leopark123/intellimaint-pro/internal/model"
)

// ResultStore is the append-only sink for everything the analytics
// components produce on their own schedule rather than in response to
// a request: health snapshots, detected work cycles, degradation
// events, RUL estimates, trend predictions, and learned motor baseline
// profiles. Each table mirrors its model struct closely; nested slices
// that have no natural column (RULFactor, FrequencyProfile,
// ProblemTags) are stored as jsonb, the same call made for
// model.Condition elsewhere in this package.
type ResultStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
}

func NewResultStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration) *ResultStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &ResultStore{pool: pool, log: log, queryTimeout: queryTimeout}
}

func (s *ResultStore) exec(ctx context.Context, sql string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	start := time.Now()
	_, err := s.pool.Exec(ctx, sql, args...)
	return classifyErr(err, time.Since(start))
}

// InsertHealthResult persists one device's assessment, taken as the
// health engine's own Result so the problem-tag ranking travels with
// the snapshot that produced it.
func (s *ResultStore) InsertHealthResult(ctx context.Context, r health.Result) error {
	snap := r.Snapshot
	problemTags, err := json.Marshal(r.ProblemTags)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		INSERT INTO health_result (device_id, ts, index, level, deviation_score, trend_score, stability_score, alarm_score, confidence, problem_tags, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		snap.DeviceID, snap.Ts, snap.Index, int(snap.Level), snap.DeviationScore, snap.TrendScore, snap.StabilityScore, snap.AlarmScore, r.Confidence, problemTags, r.Note,
	)
}

// InsertWorkCycle persists one completed, scored machine cycle.
func (s *ResultStore) InsertWorkCycle(ctx context.Context, c model.WorkCycle) error {
	return s.exec(ctx, `
		INSERT INTO work_cycle (device_id, segment_id, start_ts, end_ts, duration_s, max_angle,
			motor1_peak_current, motor1_avg_current, motor2_peak_current, motor2_avg_current,
			energy, balance_ratio, baseline_deviation_pct, anomaly_score, is_anomaly)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (device_id, segment_id, start_ts) DO NOTHING`,
		c.DeviceID, c.SegmentID, c.Start, c.End, c.DurationS, c.MaxAngle,
		c.Motor1PeakCurrent, c.Motor1AvgCurrent, c.Motor2PeakCurrent, c.Motor2AvgCurrent,
		c.Energy, c.BalanceRatio, c.BaselineDeviationPct, c.AnomalyScore, c.IsAnomaly,
	)
}

// InsertDegradationEvent persists one confirmed sustained-trend detection.
func (s *ResultStore) InsertDegradationEvent(ctx context.Context, e model.DegradationEvent) error {
	return s.exec(ctx, `
		INSERT INTO degradation_event (device_id, tag_id, ts, type, pct_per_day, confirmed_streak)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.DeviceID, e.TagID, e.Ts, int(e.Type), e.PctPerDay, e.ConfirmedStreak,
	)
}

// InsertRULEstimate persists one remaining-useful-life prediction,
// including the ranked contributing factors.
func (s *ResultStore) InsertRULEstimate(ctx context.Context, r model.RULEstimate) error {
	factors, err := json.Marshal(r.Factors)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		INSERT INTO rul_estimate (device_id, ts, model, rul_hours, confidence, status, risk, recommended_maintenance_utc, factors)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.DeviceID, r.Ts, int(r.Model), r.RULHours, r.Confidence, int(r.Status), int(r.Risk), r.RecommendedMaintenanceUTC, factors,
	)
}

// InsertTrendPrediction persists one short-horizon linear/exponential
// forecast for a single device/tag.
func (s *ResultStore) InsertTrendPrediction(ctx context.Context, p model.TrendPrediction) error {
	return s.exec(ctx, `
		INSERT INTO trend_prediction (device_id, tag_id, ts, slope_per_hour, confidence, forecast_value, hours_to_threshold, alert)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.DeviceID, p.TagID, p.Ts, p.SlopePerHour, p.Confidence, p.ForecastValue, p.HoursToThreshold, int(p.Alert),
	)
}

// InsertBaselineProfile persists one (instance, mode, parameter)
// learned motor baseline snapshot as its own row keyed by version.
// Unlike BaselineStore, which overwrites one unversioned row per
// device-tag, this is append-only since a version bump is itself
// meaningful history here.
func (s *ResultStore) InsertBaselineProfile(ctx context.Context, p model.BaselineProfile) error {
	var freq []byte
	if p.Frequency != nil {
		var err error
		freq, err = json.Marshal(p.Frequency)
		if err != nil {
			return err
		}
	}
	return s.exec(ctx, `
		INSERT INTO motor_baseline_profile (instance_id, mode_id, parameter, mean, std, min, max, p05, p50, p95, frequency, version, sample_count, learned_to_utc)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (instance_id, mode_id, parameter, version) DO NOTHING`,
		p.InstanceID, p.ModeID, int(p.Parameter), p.Mean, p.Std, p.Min, p.Max, p.P05, p.P50, p.P95, freq, p.Version, p.SampleCount, p.LearnedToUTC,
	)
}
