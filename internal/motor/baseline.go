package motor

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
)

const (
	minVariance = 1e-9
	msPerDay    = 24 * 60 * 60 * 1000
)

// paramState is the mutable online-learning state for one
// (instance, mode, parameter) triple. Mean/Variance track the
// incrementally-updated Gaussian estimate; Reservoir is a bounded
// uniform sample used to derive percentiles without retaining the full
// history.
type paramState struct {
	mu           sync.Mutex
	mean         float64
	variance     float64
	n            int64
	min          float64
	max          float64
	hasRange     bool
	reservoir    []float64
	reservoirLen int64 // total count ever offered, for Algorithm R
	version      int64
	learnedToUTC int64
}

// Learner maintains per-(instance,mode,parameter) baseline statistics
// by blending each accepted batch's mean/variance into the running
// estimate with a fixed incremental weight, plus an aging term and an
// anomaly-rejection filter. internal/edge's deadband filter, by contrast,
// runs per-sample Welford updates for outlier detection.
type Learner struct {
	cfg config.DynamicBaselineConfig
	mu  sync.Mutex
	rng *rand.Rand

	states map[string]*paramState
}

func NewLearner(cfg config.DynamicBaselineConfig) *Learner {
	return &Learner{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(1)),
		states: make(map[string]*paramState),
	}
}

func stateKey(instanceID, modeID string, param model.MotorParameter) string {
	return fmt.Sprintf("%s|%s|%d", instanceID, modeID, param)
}

func (l *Learner) stateFor(instanceID, modeID string, param model.MotorParameter) *paramState {
	k := stateKey(instanceID, modeID, param)
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[k]
	if !ok {
		st = &paramState{reservoir: make([]float64, 0, l.reservoirCap())}
		l.states[k] = st
	}
	return st
}

func (l *Learner) reservoirCap() int {
	if l.cfg.ReservoirSize <= 0 {
		return 2000
	}
	return l.cfg.ReservoirSize
}

// Learn folds a new batch of samples for one (instance,mode,parameter)
// into its running statistics and returns the updated BaselineProfile.
// Samples more than AnomalyFilterThreshold*σ from the current mean are
// rejected before incorporation, once the state has seen at least
// MinSampleCount prior samples. A batch that is entirely rejected (or
// empty) leaves the profile unchanged.
func (l *Learner) Learn(instanceID, modeID string, param model.MotorParameter, samples []float64, now int64) model.BaselineProfile {
	st := l.stateFor(instanceID, modeID, param)
	st.mu.Lock()
	defer st.mu.Unlock()

	accepted := l.filterSamples(st, samples)
	if len(accepted) == 0 {
		return l.snapshot(instanceID, modeID, param, st)
	}

	l.applyAging(st, now)

	meanX, varX := meanVariance(accepted)
	if st.n == 0 {
		st.mean = meanX
		st.variance = varX
	} else {
		w := l.cfg.IncrementalWeight
		oldMean := st.mean
		st.mean = oldMean + w*(meanX-oldMean)
		st.variance = (1-w)*st.variance + w*varX + w*(1-w)*(meanX-oldMean)*(meanX-oldMean)
	}
	if st.variance < minVariance {
		st.variance = minVariance
	}

	for _, x := range accepted {
		if !st.hasRange || x < st.min {
			st.min = x
		}
		if !st.hasRange || x > st.max {
			st.max = x
		}
		st.hasRange = true
		l.offerReservoir(st, x)
	}

	st.n += int64(len(accepted))
	st.version++
	st.learnedToUTC = now

	return l.snapshot(instanceID, modeID, param, st)
}

// filterSamples drops samples more than AnomalyFilterThreshold standard
// deviations from the current mean, once the tracker has accumulated
// MinSampleCount samples. Before that point every sample is accepted so
// the estimate can bootstrap.
func (l *Learner) filterSamples(st *paramState, samples []float64) []float64 {
	if st.n < l.cfg.MinSampleCount || st.variance <= 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	std := math.Sqrt(st.variance)
	out := make([]float64, 0, len(samples))
	for _, x := range samples {
		if std > 0 && math.Abs(x-st.mean) > l.cfg.AnomalyFilterThreshold*std {
			continue
		}
		out = append(out, x)
	}
	return out
}

// applyAging decays the variance estimate toward zero evidence by one
// aging step per day elapsed since the last learn call (fractional days
// decay proportionally in the exponent), floored at
// minVariance so the estimate never collapses to a point mass.
func (l *Learner) applyAging(st *paramState, now int64) {
	if st.learnedToUTC == 0 || l.cfg.AgingFactor <= 0 {
		return
	}
	daysSince := float64(now-st.learnedToUTC) / msPerDay
	if daysSince <= 0 {
		return
	}
	st.variance *= math.Pow(1-l.cfg.AgingFactor, daysSince)
	if st.variance < minVariance {
		st.variance = minVariance
	}
}

// offerReservoir implements Algorithm R reservoir sampling so percentile
// estimates stay bounded in memory regardless of total sample volume.
func (l *Learner) offerReservoir(st *paramState, x float64) {
	capacity := l.reservoirCap()
	st.reservoirLen++
	if len(st.reservoir) < capacity {
		st.reservoir = append(st.reservoir, x)
		return
	}
	j := l.rng.Int63n(st.reservoirLen)
	if j < int64(capacity) {
		st.reservoir[j] = x
	}
}

func (l *Learner) snapshot(instanceID, modeID string, param model.MotorParameter, st *paramState) model.BaselineProfile {
	p05, p50, p95 := percentiles(st.reservoir)
	return model.BaselineProfile{
		InstanceID:   instanceID,
		ModeID:       modeID,
		Parameter:    param,
		Mean:         st.mean,
		Std:          math.Sqrt(st.variance),
		Min:          st.min,
		Max:          st.max,
		P05:          p05,
		P50:          p50,
		P95:          p95,
		Version:      st.version,
		SampleCount:  st.n,
		LearnedToUTC: st.learnedToUTC,
	}
}

func meanVariance(xs []float64) (mean, variance float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	if len(xs) == 1 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, ss / float64(len(xs)-1)
}

func percentiles(reservoir []float64) (p05, p50, p95 float64) {
	if len(reservoir) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(reservoir))
	copy(sorted, reservoir)
	sort.Float64s(sorted)
	return pctile(sorted, 0.05), pctile(sorted, 0.50), pctile(sorted, 0.95)
}

func pctile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(math.Round(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
