package collection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/observability"
	"github.com/leopark123/intellimaint-pro/internal/ratelimit"
	"github.com/leopark123/intellimaint-pro/internal/store"
)

const tickInterval = 500 * time.Millisecond

// RuleSource supplies the current enabled CollectionRules and a
// monotonic revision counter; the engine reloads rules only when the
// revision changes, per spec.md §4.3 step 1.
type RuleSource interface {
	Revision(ctx context.Context) (int64, error)
	Rules(ctx context.Context) ([]model.CollectionRule, error)
}

// SegmentSink persists a finalized CollectionSegment.
type SegmentSink interface {
	SaveSegment(ctx context.Context, seg model.CollectionSegment) error
}

// Engine is the single scheduled worker driving every rule's state
// machine. It owns all per-rule state; external callers never mutate it
// directly, matching spec.md §5's "per-rule state is owned by its single
// evaluator" design note.
type Engine struct {
	telemetry store.TelemetryStore
	rules     RuleSource
	sink      SegmentSink
	metrics   *observability.Metrics
	log       *zap.Logger
	limiter   *ratelimit.Bucket

	revision int64
	states   map[string]*ruleState // keyed by rule_id
	tagKeys  map[TagKey]struct{}   // union of tags referenced across rules
}

// NewEngine builds an Engine. limiter may be nil, in which case segment
// persistence never throttles.
func NewEngine(telemetry store.TelemetryStore, rules RuleSource, sink SegmentSink, metrics *observability.Metrics, log *zap.Logger, limiter *ratelimit.Bucket) *Engine {
	return &Engine{
		telemetry: telemetry,
		rules:     rules,
		sink:      sink,
		metrics:   metrics,
		log:       log,
		limiter:   limiter,
		revision:  -1,
		states:    make(map[string]*ruleState),
		tagKeys:   make(map[TagKey]struct{}),
	}
}

// Run ticks every 500ms until ctx is cancelled, finalizing any in-flight
// segments (best-effort) before returning.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown(context.Background())
			return
		case <-ticker.C:
			e.Tick(ctx, time.Now().UnixMilli())
		}
	}
}

// Tick performs one evaluation pass: reload rules on revision change,
// refresh the tag snapshot, then drive every rule's state machine.
func (e *Engine) Tick(ctx context.Context, now int64) {
	if err := e.reloadIfRevisionChanged(ctx); err != nil {
		e.log.Warn("collection: rule reload failed, retrying next tick", zap.Error(err))
	}

	snap, err := e.refreshSnapshot(ctx)
	if err != nil {
		e.log.Warn("collection: snapshot refresh failed, retrying next tick", zap.Error(err))
		return
	}

	active := 0
	for _, rs := range e.states {
		if seg := rs.tick(now, snap); seg != nil {
			e.persist(ctx, *seg, "Completed")
		}
		if func() bool {
			rs.mu.Lock()
			defer rs.mu.Unlock()
			return rs.phase != engineIdle
		}() {
			active++
		}
	}
	if e.metrics != nil {
		e.metrics.ActiveSegments.Set(float64(active))
	}
}

func (e *Engine) reloadIfRevisionChanged(ctx context.Context) error {
	rev, err := e.rules.Revision(ctx)
	if err != nil {
		return err
	}
	if rev == e.revision {
		return nil
	}
	rules, err := e.rules.Rules(ctx)
	if err != nil {
		return err
	}

	newStates := make(map[string]*ruleState, len(rules))
	newTagKeys := make(map[TagKey]struct{})
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if existing, ok := e.states[r.RuleID]; ok {
			existing.mu.Lock()
			existing.rule = r
			existing.mu.Unlock()
			newStates[r.RuleID] = existing
		} else {
			newStates[r.RuleID] = newRuleState(r)
		}
		collectTagKeys(r.StartCondition, r.DeviceID, newTagKeys)
		collectTagKeys(r.StopCondition, r.DeviceID, newTagKeys)
	}

	e.states = newStates
	e.tagKeys = newTagKeys
	e.revision = rev
	return nil
}

func collectTagKeys(cond model.Condition, deviceID string, into map[TagKey]struct{}) {
	switch cond.Kind {
	case model.CondKindTagPred:
		into[TagKey{DeviceID: deviceID, TagID: cond.TagID}] = struct{}{}
	case model.CondKindAnd, model.CondKindOr:
		for _, item := range cond.Items {
			collectTagKeys(item, deviceID, into)
		}
	}
}

func (e *Engine) refreshSnapshot(ctx context.Context) (Snapshot, error) {
	snap := make(Snapshot, len(e.tagKeys))
	for key := range e.tagKeys {
		pt, ok, err := e.telemetry.GetLatest(ctx, key.DeviceID, key.TagID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		v, numeric := pt.Value.AsFloat64()
		if !numeric {
			continue
		}
		snap[key] = TagSample{Value: v, Ts: pt.Ts}
	}
	return snap, nil
}

func (e *Engine) persist(ctx context.Context, seg model.CollectionSegment, status string) {
	if e.limiter != nil {
		if err := e.limiter.Allow(ratelimit.OpCollectionPostFunc); err != nil {
			e.log.Warn("collection: post-action rate limited, segment dropped", zap.String("segment_id", seg.ID), zap.Error(err))
			return
		}
	}
	if err := e.sink.SaveSegment(ctx, seg); err != nil {
		e.log.Error("collection: failed to save segment", zap.String("segment_id", seg.ID), zap.Error(err))
		return
	}
	if e.metrics != nil {
		e.metrics.SegmentsCompletedTotal.WithLabelValues(status).Inc()
	}
}

// shutdown finalizes every in-flight segment, best-effort, per spec.md
// §4.3's shutdown semantics.
func (e *Engine) shutdown(ctx context.Context) {
	now := time.Now().UnixMilli()
	for _, rs := range e.states {
		if seg := rs.forceFinalize(now); seg != nil {
			e.persist(ctx, *seg, "Completed")
		}
	}
}
