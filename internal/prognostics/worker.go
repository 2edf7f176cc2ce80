package prognostics

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

// DeviceSource lists the devices to run degradation/trend/RUL
// evaluation over.
type DeviceSource interface {
	List(ctx context.Context) ([]model.Device, error)
}

// TagCatalog resolves the tags known for one device. Synchronous, same
// as health.BaselineSource's sibling lookup, since it's backed by the
// same refreshed in-memory cache.
type TagCatalog interface {
	DeviceTags(deviceID string) []string
}

// HistorySource resolves one device/tag's recent numeric history.
type HistorySource interface {
	TagValues(ctx context.Context, deviceID, tagID string, startTs, endTs int64) ([]statutil.TimedValue, error)
}

// AlarmRuleSource supplies the threshold rules PredictTrend checks
// history against; a device/tag pair with no configured threshold rule
// still gets a trend forecast, just with HoursToThreshold left at 0.
type AlarmRuleSource interface {
	Rules(ctx context.Context) ([]model.AlarmRule, error)
}

// ResultSink persists every kind of prognostics output.
type ResultSink interface {
	InsertDegradationEvent(ctx context.Context, e model.DegradationEvent) error
	InsertRULEstimate(ctx context.Context, r model.RULEstimate) error
	InsertTrendPrediction(ctx context.Context, p model.TrendPrediction) error
}

// Worker is the scheduled driver tying the degradation detector, trend
// predictor, and RUL estimator to live device/tag history. None of
// these three are invoked anywhere else in the codebase outside of
// tests without it, the same gap internal/alarm/worker.go closes for
// the alarm evaluator.
type Worker struct {
	devices   DeviceSource
	tags      TagCatalog
	history   HistorySource
	rules     AlarmRuleSource
	results   ResultSink
	degrader  *DegradationDetector
	trendCfg  config.TrendPredictionConfig
	rulCfg    config.RulPredictionConfig
	degrCfg   config.DegradationConfig
	log       *zap.Logger

	interval     time.Duration
	lastRules    time.Time
	cachedRules  []model.AlarmRule
	rulesRefresh time.Duration
}

func NewWorker(devices DeviceSource, tags TagCatalog, history HistorySource, rules AlarmRuleSource, results ResultSink,
	trendCfg config.TrendPredictionConfig, rulCfg config.RulPredictionConfig, degrCfg config.DegradationConfig, log *zap.Logger) *Worker {
	return &Worker{
		devices:      devices,
		tags:         tags,
		history:      history,
		rules:        rules,
		results:      results,
		degrader:     NewDegradationDetector(degrCfg),
		trendCfg:     trendCfg,
		rulCfg:       rulCfg,
		degrCfg:      degrCfg,
		log:          log,
		interval:     15 * time.Minute,
		rulesRefresh: 30 * time.Second,
	}
}

// Run ticks every 15 minutes; trend/degradation/RUL are multi-hour
// phenomena and don't need a tighter cadence.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			w.Tick(ctx, t.UnixMilli())
		}
	}
}

func (w *Worker) Tick(ctx context.Context, now int64) {
	w.refreshRules(ctx)

	devices, err := w.devices.List(ctx)
	if err != nil {
		w.log.Warn("prognostics: failed to list devices", zap.Error(err))
		return
	}

	for _, d := range devices {
		w.evaluateDevice(ctx, d.DeviceID, now)
	}
}

func (w *Worker) refreshRules(ctx context.Context) {
	if time.Since(w.lastRules) < w.rulesRefresh {
		return
	}
	rules, err := w.rules.Rules(ctx)
	if err != nil {
		w.log.Warn("prognostics: rule cache refresh failed, retaining previous rules", zap.Error(err))
		return
	}
	w.cachedRules = rules
	w.lastRules = time.Now()
}

func (w *Worker) thresholdRuleFor(deviceID, tagID string) *ThresholdRule {
	for _, r := range w.cachedRules {
		if r.TagID != tagID || !r.Enabled {
			continue
		}
		if r.DeviceID != "" && r.DeviceID != deviceID {
			continue
		}
		return &ThresholdRule{ConditionType: r.ConditionType, Threshold: r.Threshold}
	}
	return nil
}

// evaluateDevice runs degradation + trend prediction over every known
// tag, then estimates RUL once for the device using the tag with the
// fastest-confirmed degradation this tick (or its first tag if none
// degraded) — RULEstimate carries no TagID, so one representative
// series has to stand in for device-level remaining life. A fuller
// implementation would combine every tag's contribution explicitly.
func (w *Worker) evaluateDevice(ctx context.Context, deviceID string, now int64) {
	tagIDs := w.tags.DeviceTags(deviceID)
	if len(tagIDs) == 0 {
		return
	}

	historyWindowMs := w.trendCfg.HistoryWindowHours * 3_600_000
	if w.degrCfg.DetectionWindowDays*24 > w.trendCfg.HistoryWindowHours {
		historyWindowMs = w.degrCfg.DetectionWindowDays * 24 * 3_600_000
	}
	startTs := now - historyWindowMs

	var rulTagID string
	var rulHistory []statutil.TimedValue
	var bestRate float64

	for _, tagID := range tagIDs {
		history, err := w.history.TagValues(ctx, deviceID, tagID, startTs, now)
		if err != nil {
			w.log.Warn("prognostics: history fetch failed", zap.String("device_id", deviceID), zap.String("tag_id", tagID), zap.Error(err))
			continue
		}
		if len(history) == 0 {
			continue
		}
		if rulTagID == "" {
			rulTagID = tagID
			rulHistory = history
		}

		if event := w.degrader.Evaluate(deviceID, tagID, history, now); event != nil {
			if err := w.results.InsertDegradationEvent(ctx, *event); err != nil {
				w.log.Error("prognostics: failed to persist degradation event", zap.Error(err))
			}
			if math.Abs(event.PctPerDay) > bestRate {
				bestRate = math.Abs(event.PctPerDay)
				rulTagID = tagID
				rulHistory = history
			}
		}

		trend := PredictTrend(deviceID, tagID, history, now, w.thresholdRuleFor(deviceID, tagID), w.trendCfg)
		if err := w.results.InsertTrendPrediction(ctx, trend); err != nil {
			w.log.Error("prognostics: failed to persist trend prediction", zap.Error(err))
		}
	}

	if rulTagID == "" {
		return
	}
	estimate := EstimateRUL(deviceID, rulHistory, now, w.rulCfg)
	if err := w.results.InsertRULEstimate(ctx, estimate); err != nil {
		w.log.Error("prognostics: failed to persist RUL estimate", zap.Error(err))
	}
}
