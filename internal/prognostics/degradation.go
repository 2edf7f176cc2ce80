package prognostics

import (
	"math"
	"sync"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

// ruleState tracks a device/tag's consecutive-evaluation confirmation
// streak, mirroring the mutex-guarded per-key state shape used for
// motor baseline learning and anomaly scoring elsewhere in this module.
type ruleState struct {
	mu     sync.Mutex
	streak int
	typ    model.DegradationType
}

// DegradationDetector confirms a sustained trend only after it survives
// ConfirmationCount consecutive evaluations, denoising single-evaluation
// blips.
type DegradationDetector struct {
	cfg    config.DegradationConfig
	mu     sync.Mutex
	states map[string]*ruleState
}

func NewDegradationDetector(cfg config.DegradationConfig) *DegradationDetector {
	return &DegradationDetector{cfg: cfg, states: make(map[string]*ruleState)}
}

func (d *DegradationDetector) stateFor(deviceID, tagID string) *ruleState {
	key := deviceID + "|" + tagID
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[key]
	if !ok {
		st = &ruleState{}
		d.states[key] = st
	}
	return st
}

// Evaluate applies a moving-average noise filter over history (bucketed
// by NoiseFilterWindowHours), fits a daily percent-change slope over the
// trailing DetectionWindowDays, classifies the degradation type, and
// returns a non-nil event only once that classification has held for
// ConfirmationCount consecutive calls.
func (d *DegradationDetector) Evaluate(deviceID, tagID string, history []statutil.TimedValue, now int64) *model.DegradationEvent {
	filtered := movingAverageFilter(history, d.cfg.NoiseFilterWindowHours)
	windowStart := now - d.cfg.DetectionWindowDays*24*3_600_000
	windowed := inWindow(filtered, windowStart)

	typ, pctPerDay := classify(windowed, d.cfg.DegradationRateThreshold)

	st := d.stateFor(deviceID, tagID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if typ == model.DegradationNone || typ != st.typ {
		st.typ = typ
		if typ == model.DegradationNone {
			st.streak = 0
		} else {
			st.streak = 1
		}
	} else {
		st.streak++
	}

	if typ == model.DegradationNone || st.streak < d.cfg.ConfirmationCount {
		return nil
	}
	return &model.DegradationEvent{
		DeviceID:        deviceID,
		TagID:           tagID,
		Ts:              now,
		Type:            typ,
		PctPerDay:       pctPerDay,
		ConfirmedStreak: st.streak,
	}
}

// movingAverageFilter buckets points into windowHours-wide buckets
// (anchored at the first point) and replaces each bucket with its mean,
// stamped at the bucket's last timestamp. windowHours<=0 disables
// filtering.
func movingAverageFilter(history []statutil.TimedValue, windowHours int64) []statutil.TimedValue {
	if windowHours <= 0 || len(history) == 0 {
		return history
	}
	bucketMs := windowHours * 3_600_000
	t0 := history[0].Ts

	var out []statutil.TimedValue
	var bucketSum float64
	var bucketCount int
	var bucketEndTs int64
	currentBucket := int64(-1)

	flush := func() {
		if bucketCount > 0 {
			out = append(out, statutil.TimedValue{Ts: bucketEndTs, Value: bucketSum / float64(bucketCount)})
		}
	}
	for _, p := range history {
		b := (p.Ts - t0) / bucketMs
		if b != currentBucket {
			flush()
			currentBucket = b
			bucketSum = 0
			bucketCount = 0
		}
		bucketSum += p.Value
		bucketCount++
		bucketEndTs = p.Ts
	}
	flush()
	return out
}

func inWindow(points []statutil.TimedValue, windowStart int64) []statutil.TimedValue {
	var out []statutil.TimedValue
	for _, p := range points {
		if p.Ts >= windowStart {
			out = append(out, p)
		}
	}
	return out
}

// classify fits a linear regression over windowed points and turns the
// daily percent-change slope into a DegradationType. Variance growth
// (IncreasingVariance) is detected separately by comparing the first
// and second half's standard deviation.
func classify(windowed []statutil.TimedValue, rateThreshold float64) (model.DegradationType, float64) {
	if len(windowed) < 3 {
		return model.DegradationNone, 0
	}
	slopePerHour, intercept, _ := statutil.LinearRegression(windowed)
	baseline := math.Abs(intercept)
	if baseline == 0 {
		baseline = 1
	}
	pctPerDay := (slopePerHour * 24 / baseline) * 100

	if varianceIncreasing(windowed) {
		return model.DegradationIncreasingVariance, pctPerDay
	}
	switch {
	case pctPerDay >= rateThreshold:
		return model.DegradationGradualIncrease, pctPerDay
	case pctPerDay <= -rateThreshold:
		return model.DegradationGradualDecrease, pctPerDay
	default:
		return model.DegradationNone, pctPerDay
	}
}

// varianceIncreasing reports whether the second half of the window has
// materially higher standard deviation than the first half.
func varianceIncreasing(points []statutil.TimedValue) bool {
	n := len(points)
	if n < 6 {
		return false
	}
	mid := n / 2
	firstStd := stdOfTimedValues(points[:mid])
	secondStd := stdOfTimedValues(points[mid:])
	if firstStd <= 0 {
		return secondStd > 0
	}
	return secondStd/firstStd >= 1.5
}

func stdOfTimedValues(points []statutil.TimedValue) float64 {
	if len(points) < 2 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / float64(len(points))
	var ss float64
	for _, p := range points {
		d := p.Value - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(points)-1))
}
