package motor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
)

// ConfigSource supplies the operator-configured motor instances, their
// operation modes, and tag-to-parameter mappings.
type ConfigSource interface {
	Instances(ctx context.Context) ([]string, error)
	Modes(ctx context.Context, instanceID string) ([]model.OperationMode, error)
	ParameterMappings(ctx context.Context, instanceID string) ([]model.MotorParameterMapping, error)
}

// TelemetrySource resolves a tag's recent history, scoped to one motor
// instance. Instances map 1:1 onto devices in this deployment (a
// multi-motor device would need a device/instance join table this
// catalog doesn't carry), so instanceID doubles as deviceID here.
type TelemetrySource interface {
	RecentValues(ctx context.Context, deviceID, tagID string, since int64) ([]TagSample, error)
}

// ResultSink persists one learned baseline snapshot.
type ResultSink interface {
	InsertBaselineProfile(ctx context.Context, p model.BaselineProfile) error
}

// Worker is the scheduled driver for the baseline learner: per
// instance, detect the active operation mode from its trigger tag's
// recent history, then feed every mapped parameter's recent samples
// into the Learner.
type Worker struct {
	config    ConfigSource
	telemetry TelemetrySource
	results   ResultSink
	learner   *Learner
	log       *zap.Logger

	historyWindow time.Duration
}

func NewWorker(cfgSrc ConfigSource, telemetry TelemetrySource, results ResultSink, cfg config.DynamicBaselineConfig, log *zap.Logger) *Worker {
	return &Worker{
		config:        cfgSrc,
		telemetry:     telemetry,
		results:       results,
		learner:       NewLearner(cfg),
		log:           log,
		historyWindow: time.Hour,
	}
}

// Run ticks every minute until ctx is cancelled; a full learning pass
// reads modest amounts of history per instance and doesn't need
// collection.Engine's 500ms cadence.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
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
	instances, err := w.config.Instances(ctx)
	if err != nil {
		w.log.Warn("motor: failed to list instances", zap.Error(err))
		return
	}
	for _, instanceID := range instances {
		if err := w.learnInstance(ctx, instanceID, now); err != nil {
			w.log.Error("motor: learning pass failed", zap.String("instance_id", instanceID), zap.Error(err))
		}
	}
}

func (w *Worker) learnInstance(ctx context.Context, instanceID string, now int64) error {
	modes, err := w.config.Modes(ctx, instanceID)
	if err != nil {
		return err
	}
	mappings, err := w.config.ParameterMappings(ctx, instanceID)
	if err != nil {
		return err
	}
	if len(modes) == 0 || len(mappings) == 0 {
		return nil
	}

	since := now - w.historyWindow.Milliseconds()
	history := make(map[string][]TagSample, len(modes))
	for _, m := range modes {
		samples, err := w.telemetry.RecentValues(ctx, instanceID, m.TriggerTagID, since)
		if err != nil {
			return err
		}
		history[m.TriggerTagID] = samples
	}

	mode, ok := DetectMode(modes, history, now)
	if !ok {
		return nil
	}

	for _, mapping := range mappings {
		raw, err := w.telemetry.RecentValues(ctx, instanceID, mapping.TagID, since)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			continue
		}
		values := make([]float64, len(raw))
		for i, s := range raw {
			values[i] = s.Value*mapping.Scale + mapping.Offset
		}
		profile := w.learner.Learn(instanceID, mode.ModeID, mapping.Parameter, values, now)
		if err := w.results.InsertBaselineProfile(ctx, profile); err != nil {
			w.log.Error("motor: failed to persist baseline profile", zap.String("instance_id", instanceID), zap.Error(err))
		}
	}
	return nil
}
