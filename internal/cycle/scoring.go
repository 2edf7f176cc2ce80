package cycle

import (
	"math"

	"github.com/leopark123/intellimaint-pro/internal/model"

	"github.com/leopark123/intellimaint-pro/internal/config"
)

// ScoreInputs carries the reference values a single cycle's anomaly
// score is measured against: the historical average duration and
// average current for this rule, plus the angle_threshold used for
// detection (needed to recognize an angle_stall cycle that barely
// crossed the threshold).
type ScoreInputs struct {
	ExpectedDurationS  float64
	ExpectedAvgCurrent float64
	AngleThreshold     float64
}

// ScoreCycle computes anomaly_score ∈ [0,100], is_anomaly, and the
// dominant-contributor anomaly_type for one detected cycle, combining
// baseline deviation, balance deviation, and duration deviation with the
// configured weights. Returns a copy of cycle with those fields set; the
// caller's value is not modified.
func ScoreCycle(cycle model.WorkCycle, in ScoreInputs, cfg config.CycleConfig) model.WorkCycle {
	deviationScore := clamp100(cycle.BaselineDeviationPct)
	balanceScore := clamp100(math.Abs(cycle.BalanceRatio-1) * 100)

	durationScore := 0.0
	if in.ExpectedDurationS > 0 {
		durationScore = clamp100(math.Abs(cycle.DurationS-in.ExpectedDurationS) / in.ExpectedDurationS * 100)
	}

	weightedDeviation := cfg.DeviationWeight * deviationScore
	weightedBalance := cfg.BalanceWeight * balanceScore
	weightedDuration := cfg.DurationWeight * durationScore

	cycle.AnomalyScore = weightedDeviation + weightedBalance + weightedDuration
	cycle.IsAnomaly = cycle.AnomalyScore >= cfg.AnomalyThreshold

	if !cycle.IsAnomaly {
		cycle.AnomalyType = ""
		return cycle
	}

	if in.AngleThreshold > 0 && cycle.MaxAngle < in.AngleThreshold*1.02 {
		cycle.AnomalyType = "angle_stall"
		return cycle
	}

	cycle.AnomalyType = dominantContributor(weightedDeviation, weightedBalance, weightedDuration, cycle, in)
	return cycle
}

func dominantContributor(deviation, balance, duration float64, cycle model.WorkCycle, in ScoreInputs) string {
	switch {
	case deviation >= balance && deviation >= duration:
		avgCurrent := (cycle.Motor1AvgCurrent + cycle.Motor2AvgCurrent) / 2
		if in.ExpectedAvgCurrent > 0 && avgCurrent > in.ExpectedAvgCurrent {
			return "over_current"
		}
		return "baseline_deviation"
	case balance >= duration:
		return "motor_imbalance"
	default:
		if in.ExpectedDurationS > 0 && cycle.DurationS > in.ExpectedDurationS {
			return "cycle_timeout"
		}
		return "cycle_too_short"
	}
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
