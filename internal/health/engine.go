package health

import (
	"context"
	"sort"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

// TagSource supplies the aligned value window for one tag, used for both
// deviation/stability/trend scoring and correlation analysis.
type TagSource interface {
	TagValues(ctx context.Context, deviceID, tagID string, startTs, endTs int64) ([]statutil.TimedValue, error)
}

// BaselineSource resolves a device/tag's learned baseline.
type BaselineSource interface {
	Baseline(deviceID, tagID string) (model.DeviceBaseline, bool)
}

// AlarmSource lists open alarms touching a device within a window.
type AlarmSource interface {
	OpenAlarms(ctx context.Context, deviceID string, windowStart, windowEnd int64) ([]OpenAlarmInWindow, error)
}

// RuleSource supplies the device's tags plus the tag-importance and
// cross-tag correlation rules that apply to it.
type RuleSource interface {
	DeviceTags(deviceID string) []string
	ImportanceRules() []model.TagImportanceRule
	CorrelationRules() []model.TagCorrelationRule
}

// Engine computes DeviceHealthSnapshots from a device's tag windows,
// baselines, open alarms, and configured rules.
type Engine struct {
	tags      TagSource
	baselines BaselineSource
	alarms    AlarmSource
	rules     RuleSource
	cfg       config.HealthAssessmentConfig
	multi     config.MultiScaleConfig
}

func NewEngine(tags TagSource, baselines BaselineSource, alarms AlarmSource, rules RuleSource, cfg config.HealthAssessmentConfig, multi config.MultiScaleConfig) *Engine {
	return &Engine{tags: tags, baselines: baselines, alarms: alarms, rules: rules, cfg: cfg, multi: multi}
}

// Result is a full health assessment: the snapshot, ranked problem tags,
// and a confidence note.
type Result struct {
	Snapshot    model.DeviceHealthSnapshot
	ProblemTags []model.ProblemTag
	Confidence  float64
	Note        string
}

// Assess computes a DeviceHealthSnapshot for deviceID as of now, over
// DefaultWindowMinutes (or the multi-scale windows when enabled).
func (e *Engine) Assess(ctx context.Context, deviceID string, now int64) (Result, error) {
	if e.multi.Enabled {
		return e.assessMultiScale(ctx, deviceID, now)
	}
	windowMs := e.cfg.DefaultWindowMinutes * 60_000
	return e.assessWindow(ctx, deviceID, now, windowMs, 1.0)
}

func (e *Engine) assessMultiScale(ctx context.Context, deviceID string, now int64) (Result, error) {
	short, err := e.assessWindow(ctx, deviceID, now, e.multi.ShortTermMinutes*60_000, 1.0)
	if err != nil {
		return Result{}, err
	}
	medium, err := e.assessWindow(ctx, deviceID, now, e.multi.MediumTermMinutes*60_000, 1.0)
	if err != nil {
		return Result{}, err
	}
	long, err := e.assessWindow(ctx, deviceID, now, e.multi.LongTermMinutes*60_000, 1.0)
	if err != nil {
		return Result{}, err
	}

	composite := e.multi.ShortWeight*short.Snapshot.Index +
		e.multi.MediumWeight*medium.Snapshot.Index +
		e.multi.LongWeight*long.Snapshot.Index
	composite = clamp(composite, 0, 100)

	snap := short.Snapshot
	snap.Index = composite
	snap.Level = Level(composite, e.cfg.LevelThresholds)

	result := short
	result.Snapshot = snap
	return result, nil
}

func (e *Engine) assessWindow(ctx context.Context, deviceID string, now, windowMs int64, scaleWeight float64) (Result, error) {
	windowStart := now - windowMs
	tagIDs := e.rules.DeviceTags(deviceID)
	importanceRules := e.rules.ImportanceRules()

	var windows []TagWindow
	correlationWindows := make(map[string]TagValueWindow)
	var totalSamples int64

	for _, tagID := range tagIDs {
		series, err := e.tags.TagValues(ctx, deviceID, tagID, windowStart, now)
		if err != nil {
			return Result{}, err
		}
		values := make([]float64, len(series))
		for i, s := range series {
			values[i] = s.Value
		}
		totalSamples += int64(len(values))

		baseline, hasBaseline := e.baselines.Baseline(deviceID, tagID)
		importance := ResolveImportance(tagID, importanceRules, model.ParseTagImportanceLevel(e.cfg.DefaultTagImportance))

		windows = append(windows, TagWindow{
			TagID:       tagID,
			Values:      values,
			Baseline:    baseline,
			HasBaseline: hasBaseline,
			Importance:  importance,
		})

		var current float64
		if len(values) > 0 {
			current = values[len(values)-1]
		}
		correlationWindows[tagID] = TagValueWindow{TagID: tagID, Samples: values, CurrentValue: current}
	}

	deviationScore := DeviationScore(windows)
	problemTags := rankProblemTags(windows, e.cfg.ProblemTagsTopN)

	var trendPoints []statutil.TimedValue
	var trendRange float64
	var stabilityValues []float64
	if len(windows) > 0 {
		primary := windows[0]
		stabilityValues = primary.Values
		if primary.HasBaseline {
			trendRange = primary.Baseline.Max - primary.Baseline.Min
		}
		for i, v := range primary.Values {
			trendPoints = append(trendPoints, statutil.TimedValue{Ts: windowStart + int64(i), Value: v})
		}
	}
	trendScore := TrendScore(trendPoints, trendRange, e.cfg.TrendSlopeK)
	stabilityScore := StabilityScore(stabilityValues, e.cfg.StabilityK)

	openAlarms, err := e.alarms.OpenAlarms(ctx, deviceID, windowStart, now)
	if err != nil {
		return Result{}, err
	}
	alarmScore := AlarmScore(openAlarms, e.cfg)

	composite := Composite(deviationScore, trendScore, stabilityScore, alarmScore, e.cfg.Weights)

	correlationRules := e.rules.CorrelationRules()
	hits := EvaluateCorrelations(deviceID, correlationWindows, correlationRules)
	composite = ApplyPenalties(composite, hits)

	confidence := 1.0
	note := ""
	if e.cfg.MinSampleCount > 0 && totalSamples < e.cfg.MinSampleCount {
		confidence = float64(totalSamples) / float64(e.cfg.MinSampleCount)
		if confidence < 0 {
			confidence = 0
		}
		note = "insufficient samples in window for full confidence"
	}

	snap := model.DeviceHealthSnapshot{
		DeviceID:       deviceID,
		Ts:             now,
		Index:          composite,
		Level:          Level(composite, e.cfg.LevelThresholds),
		DeviationScore: deviationScore,
		TrendScore:     trendScore,
		StabilityScore: stabilityScore,
		AlarmScore:     alarmScore,
	}

	return Result{Snapshot: snap, ProblemTags: problemTags, Confidence: confidence, Note: note}, nil
}

// rankProblemTags sorts deviating tags by z*importance_weight descending
// and returns the top N.
func rankProblemTags(windows []TagWindow, topN int) []model.ProblemTag {
	var problems []model.ProblemTag
	for _, w := range windows {
		if !w.HasBaseline || w.Baseline.Std <= 0 || len(w.Values) == 0 {
			continue
		}
		mean := meanOf(w.Values)
		z := absFloat(mean-w.Baseline.Mean) / w.Baseline.Std
		problems = append(problems, model.ProblemTag{
			TagID:           w.TagID,
			Z:               z,
			ImportanceLevel: w.Importance,
			Description:     "",
		})
	}
	sort.SliceStable(problems, func(i, j int) bool {
		return problems[i].Z*problems[i].ImportanceLevel.Weight() > problems[j].Z*problems[j].ImportanceLevel.Weight()
	})
	if topN > 0 && len(problems) > topN {
		problems = problems[:topN]
	}
	return problems
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
