package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// DeviceSource lists the devices the health engine assesses on its own
// schedule.
type DeviceSource interface {
	List(ctx context.Context) ([]model.Device, error)
}

// ResultSink persists a completed assessment.
type ResultSink interface {
	InsertHealthResult(ctx context.Context, r Result) error
}

// Worker is the scheduled driver tying Engine.Assess to a live device
// catalog. Nothing else in the codebase calls Assess outside of tests.
type Worker struct {
	devices  DeviceSource
	engine   *Engine
	results  ResultSink
	log      *zap.Logger
	interval time.Duration
}

func NewWorker(devices DeviceSource, engine *Engine, results ResultSink, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{devices: devices, engine: engine, results: results, interval: interval, log: log}
}

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
	devices, err := w.devices.List(ctx)
	if err != nil {
		w.log.Warn("health: failed to list devices", zap.Error(err))
		return
	}
	for _, d := range devices {
		result, err := w.engine.Assess(ctx, d.DeviceID, now)
		if err != nil {
			w.log.Error("health: assessment failed", zap.String("device_id", d.DeviceID), zap.Error(err))
			continue
		}
		if err := w.results.InsertHealthResult(ctx, result); err != nil {
			w.log.Error("health: failed to persist assessment", zap.String("device_id", d.DeviceID), zap.Error(err))
		}
	}
}
