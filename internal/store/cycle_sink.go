package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/cycle"
	"github.com/leopark123/intellimaint-pro/internal/model"
)

// Metadata keys a CollectionRule's operator sets on its segments to opt
// them into cycle analysis; CollectionConfig has no dedicated
// angle/motor-tag fields, so this piggybacks on the free-form Metadata
// map already threaded through CollectionSegment rather than widening
// the rule schema for a feature only some rules use.
const (
	MetadataCycleAngleTag  = "cycle_angle_tag"
	MetadataCycleMotor1Tag = "cycle_motor1_tag"
	MetadataCycleMotor2Tag = "cycle_motor2_tag"
)

// Auditor validates a proposed segment status transition and records it
// if allowed. Same shape as alarm.Auditor, for the same reason:
// audit.Recorder covers both entity types without either package
// importing internal/audit directly.
type Auditor interface {
	Record(entityType, entityID string, fromStatus, toStatus int, now int64, inputs map[string]any) error
}

// CycleAnalysisSink wraps a SegmentStore: every saved segment is
// persisted as before, and segments whose rule opted into cycle
// tracking are additionally replayed through the cycle detector, with
// every detected cycle scored and persisted.
type CycleAnalysisSink struct {
	segments  *SegmentStore
	telemetry TelemetryStore
	results   *ResultStore
	cfg       config.CycleConfig
	log       *zap.Logger
	auditor   Auditor
}

func NewCycleAnalysisSink(segments *SegmentStore, telemetry TelemetryStore, results *ResultStore, cfg config.CycleConfig, log *zap.Logger) *CycleAnalysisSink {
	return &CycleAnalysisSink{segments: segments, telemetry: telemetry, results: results, cfg: cfg, log: log}
}

// WithAuditor attaches an Auditor that every terminal segment
// (Completed or Failed) is validated+recorded against before it's
// persisted. Nil disables auditing (the default).
func (s *CycleAnalysisSink) WithAuditor(a Auditor) *CycleAnalysisSink {
	s.auditor = a
	return s
}

// SaveSegment implements collection.SegmentSink. Segments always arrive
// here already finalized (collection.Engine never calls SaveSegment
// mid-collection), so the transition's from-state is always Collecting;
// there's no separate "mark collecting" call to audit.
func (s *CycleAnalysisSink) SaveSegment(ctx context.Context, seg model.CollectionSegment) error {
	if s.auditor != nil && (seg.Status == model.SegmentStatusCompleted || seg.Status == model.SegmentStatusFailed) {
		inputs := map[string]any{"rule_id": seg.RuleID, "device_id": seg.DeviceID}
		if err := s.auditor.Record("segment", seg.ID, int(model.SegmentStatusCollecting), int(seg.Status), seg.EndTs, inputs); err != nil {
			return err
		}
	}
	if err := s.segments.SaveSegment(ctx, seg); err != nil {
		return err
	}
	if seg.Status != model.SegmentStatusCompleted || seg.EndTs == 0 {
		return nil
	}
	angleTag, ok := seg.Metadata[MetadataCycleAngleTag]
	if !ok {
		return nil
	}
	motor1Tag := seg.Metadata[MetadataCycleMotor1Tag]
	motor2Tag := seg.Metadata[MetadataCycleMotor2Tag]

	angle, err := s.loadSamples(ctx, seg.DeviceID, angleTag, seg.StartTs, seg.EndTs)
	if err != nil {
		s.log.Warn("cycle: angle tag load failed, skipping cycle analysis", zap.String("segment_id", seg.ID), zap.Error(err))
		return nil
	}
	motor1, err := s.loadSamples(ctx, seg.DeviceID, motor1Tag, seg.StartTs, seg.EndTs)
	if err != nil {
		s.log.Warn("cycle: motor1 tag load failed, skipping cycle analysis", zap.String("segment_id", seg.ID), zap.Error(err))
		return nil
	}
	motor2, err := s.loadSamples(ctx, seg.DeviceID, motor2Tag, seg.StartTs, seg.EndTs)
	if err != nil {
		s.log.Warn("cycle: motor2 tag load failed, skipping cycle analysis", zap.String("segment_id", seg.ID), zap.Error(err))
		return nil
	}

	cycles := cycle.DetectCycles(seg.DeviceID, seg.ID, angle, motor1, motor2, s.cfg.AngleThreshold, s.cfg.MinCycleDurationS, s.cfg.MaxCycleDurationS, nil)
	if len(cycles) == 0 {
		return nil
	}

	// ScoreInputs' expected values have no separately-learned baseline
	// wired in yet, so they're taken as this batch's own mean — new
	// cycles are scored against their neighbors in the same segment
	// rather than against history. A fuller implementation would feed
	// these from a per-device cycle baseline the way motor.Learner
	// tracks per-parameter baselines.
	in := cycle.ScoreInputs{
		ExpectedDurationS:  meanDuration(cycles),
		ExpectedAvgCurrent: meanMotor1Avg(cycles),
		AngleThreshold:     s.cfg.AngleThreshold,
	}

	for _, c := range cycles {
		scored := cycle.ScoreCycle(c, in, s.cfg)
		if err := s.results.InsertWorkCycle(ctx, scored); err != nil {
			s.log.Error("cycle: failed to persist work cycle", zap.String("segment_id", seg.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *CycleAnalysisSink) loadSamples(ctx context.Context, deviceID, tagID string, start, end int64) ([]cycle.Sample, error) {
	if tagID == "" {
		return nil, nil
	}
	result, err := s.telemetry.Query(ctx, HistoryQuery{DeviceID: deviceID, TagID: tagID, StartTs: start, EndTs: end, Sort: SortAsc})
	if err != nil {
		return nil, err
	}
	out := make([]cycle.Sample, 0, len(result.Items))
	for _, p := range result.Items {
		v, ok := p.Value.AsFloat64()
		if !ok {
			continue
		}
		out = append(out, cycle.Sample{Ts: p.Ts, Value: v})
	}
	return out, nil
}

func meanDuration(cycles []model.WorkCycle) float64 {
	if len(cycles) == 0 {
		return 0
	}
	var sum float64
	for _, c := range cycles {
		sum += c.DurationS
	}
	return sum / float64(len(cycles))
}

func meanMotor1Avg(cycles []model.WorkCycle) float64 {
	if len(cycles) == 0 {
		return 0
	}
	var sum float64
	for _, c := range cycles {
		sum += c.Motor1AvgCurrent
	}
	return sum / float64(len(cycles))
}
