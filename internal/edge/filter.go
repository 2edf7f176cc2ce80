// Package edge implements the edge preprocessor: deadband/outlier
// filtering ahead of a blocking-backpressure bounded channel that feeds
// the store-and-forward sender.
package edge

import (
	"math"
	"sync"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// TagProcessingConfig is a per-tag override of the default deadband
// policy. Bypass disables deadband filtering entirely for the tag.
type TagProcessingConfig struct {
	Deadband        float64
	DeadbandPercent float64
	Bypass          bool
}

// FilterConfig is the layered deadband/outlier configuration: defaults
// apply unless a tag has an override in PerTag.
type FilterConfig struct {
	DefaultDeadband        float64
	DefaultDeadbandPercent float64
	ForceUploadIntervalMs  int64
	OutlierSigmaThreshold  float64
	OutlierAction          OutlierAction
	PerTag                 map[string]TagProcessingConfig
}

// OutlierAction is the configured response to a value flagged as an
// outlier.
type OutlierAction int

const (
	OutlierDrop OutlierAction = iota
	OutlierMark
	OutlierPass
)

func ParseOutlierAction(s string) OutlierAction {
	switch s {
	case "Drop":
		return OutlierDrop
	case "Pass":
		return OutlierPass
	default:
		return OutlierMark
	}
}

type tagState struct {
	mu             sync.Mutex
	lastValue      float64
	hasLast        bool
	lastSentMs     int64
	count          int64
	mean           float64
	m2             float64 // Welford running sum of squared deviations
}

// Filter applies the layered deadband policy and a running-statistics
// outlier check to a stream of telemetry points for one device/edge.
type Filter struct {
	cfg   FilterConfig
	mu    sync.Mutex
	state map[string]*tagState // keyed by tag_id
}

func NewFilter(cfg FilterConfig) *Filter {
	if cfg.PerTag == nil {
		cfg.PerTag = map[string]TagProcessingConfig{}
	}
	return &Filter{cfg: cfg, state: make(map[string]*tagState)}
}

func (f *Filter) stateFor(tagID string) *tagState {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.state[tagID]
	if !ok {
		st = &tagState{}
		f.state[tagID] = st
	}
	return st
}

// Decision is the outcome of running a point through the filter.
type Decision struct {
	Emit      bool
	IsOutlier bool
}

// Apply evaluates deadband and outlier rules for a single numeric point
// and updates per-tag state. Non-numeric points are always emitted
// unfiltered (deadband/outlier have no meaning for strings/bytes/bool).
func (f *Filter) Apply(p model.TelemetryPoint) Decision {
	val, ok := p.Value.AsFloat64()
	if !ok {
		return Decision{Emit: true}
	}

	st := f.stateFor(p.TagID)
	st.mu.Lock()
	defer st.mu.Unlock()

	override, hasOverride := f.cfg.PerTag[p.TagID]

	isOutlier := f.checkOutlier(st, val)
	action := f.cfg.OutlierAction
	if isOutlier && action == OutlierDrop {
		// Outlier samples still update the running estimate below so a
		// genuine step-change doesn't get permanently rejected; the
		// point itself is dropped from emission.
		f.updateStats(st, val)
		return Decision{Emit: false, IsOutlier: true}
	}

	bypass := hasOverride && override.Bypass
	forced := f.cfg.ForceUploadIntervalMs > 0 && st.hasLast &&
		p.Ts-st.lastSentMs >= f.cfg.ForceUploadIntervalMs

	emit := true
	if !bypass && st.hasLast && !forced {
		deadband := f.cfg.DefaultDeadband
		deadbandPct := f.cfg.DefaultDeadbandPercent
		if hasOverride {
			deadband = override.Deadband
			deadbandPct = override.DeadbandPercent
		}
		absBand := deadband
		relBand := math.Abs(st.lastValue) * deadbandPct
		band := math.Max(absBand, relBand)
		if math.Abs(val-st.lastValue) <= band {
			emit = false
		}
	}

	f.updateStats(st, val)

	if emit {
		st.lastValue = val
		st.hasLast = true
		st.lastSentMs = p.Ts
	}

	return Decision{Emit: emit, IsOutlier: isOutlier}
}

// checkOutlier reports whether val is more than OutlierSigmaThreshold
// standard deviations from the running mean. Requires at least two prior
// samples to have a meaningful variance estimate.
func (f *Filter) checkOutlier(st *tagState, val float64) bool {
	if st.count < 2 || f.cfg.OutlierSigmaThreshold <= 0 {
		return false
	}
	variance := st.m2 / float64(st.count-1)
	if variance <= 0 {
		return false
	}
	std := math.Sqrt(variance)
	z := math.Abs(val-st.mean) / std
	return z > f.cfg.OutlierSigmaThreshold
}

// updateStats folds val into the tag's running mean/variance via
// Welford's online algorithm, one sample at a time (internal/motor's
// baseline learner instead blends whole batches with a fixed incremental
// weight).
func (f *Filter) updateStats(st *tagState, val float64) {
	st.count++
	delta := val - st.mean
	st.mean += delta / float64(st.count)
	delta2 := val - st.mean
	st.m2 += delta * delta2
}
