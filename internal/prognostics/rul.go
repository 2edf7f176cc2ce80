package prognostics

import (
	"math"
	"sort"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/statutil"
)

// weibullShape is the wear-out-region shape parameter (beta) used by the
// Weibull RUL model. spec.md names "Weibull" as a selectable model_type
// but does not specify how to fit one from a single degrading time
// series (Weibull is ordinarily fit from a population of observed
// times-to-failure, which this module never has). The judgment call
// made here: treat the linear trend's threshold-crossing time as the
// Weibull scale parameter (eta), assume a fixed wear-out shape of 2,
// and report the median life of that distribution as the RUL estimate
// -- conservative relative to a naive linear extrapolation, matching
// the intuition that wear-out failure risk concentrates before a
// purely linear extrapolation would suggest.
const weibullShape = 2.0

// EstimateRUL predicts remaining useful life for one device from a
// single primary health/degradation signal, per cfg.ModelType.
func EstimateRUL(deviceID string, history []statutil.TimedValue, now int64, cfg config.RulPredictionConfig) model.RULEstimate {
	est := model.RULEstimate{
		DeviceID: deviceID,
		Ts:       now,
		Model:    model.ParseRULModelType(cfg.ModelType),
		Status:   model.RULStatusInsufficientData,
		Risk:     model.RULRiskUnspecified,
	}
	if len(history) < 2 {
		return est
	}

	var hours, confidence, ratePerDay float64
	var ok bool
	switch est.Model {
	case model.RULModelExponential:
		hours, confidence, ratePerDay, ok = exponentialRUL(history, cfg.FailureThreshold)
	case model.RULModelWeibull:
		hours, confidence, ratePerDay, ok = weibullRUL(history, cfg.FailureThreshold)
	default:
		hours, confidence, ratePerDay, ok = linearRUL(history, cfg.FailureThreshold)
	}

	est.Confidence = confidence
	if !ok {
		est.RULHours = math.Inf(1)
		est.Status = model.RULStatusHealthy
		est.Risk = model.RULRiskLow
		return est
	}

	est.RULHours = hours
	est.Status = classifyStatus(hours, ratePerDay, cfg.NormalDegradationPerDay)
	est.Risk = classifyRisk(hours)
	est.RecommendedMaintenanceUTC = recommendedMaintenanceTime(now, hours, cfg.AvgRepairLeadHours)
	return est
}

// linearRUL fits value = slope*hours + intercept and returns the hours
// until the line crosses failureThreshold, the fit's R^2, and the
// degradation rate in units/day. ok is false when the slope is zero or
// the crossing already lies in the past.
func linearRUL(history []statutil.TimedValue, failureThreshold float64) (hours, confidence, ratePerDay float64, ok bool) {
	slope, intercept, r2 := statutil.LinearRegression(history)
	confidence = r2
	ratePerDay = slope * 24
	if slope == 0 {
		return 0, confidence, ratePerDay, false
	}
	failureAtHours := (failureThreshold - intercept) / slope
	nowHours := hoursSpan(history)
	hours = failureAtHours - nowHours
	if hours <= 0 || math.IsInf(hours, 0) || math.IsNaN(hours) {
		return 0, confidence, ratePerDay, false
	}
	return hours, confidence, ratePerDay, true
}

// exponentialRUL fits H(t) = H0*e^(-lambda*t) via a log-linear
// regression and returns the hours until H(t) reaches failureThreshold.
func exponentialRUL(history []statutil.TimedValue, failureThreshold float64) (hours, confidence, ratePerDay float64, ok bool) {
	if failureThreshold <= 0 {
		return 0, 0, 0, false
	}
	logPoints := make([]statutil.TimedValue, 0, len(history))
	for _, p := range history {
		if p.Value <= 0 {
			return 0, 0, 0, false
		}
		logPoints = append(logPoints, statutil.TimedValue{Ts: p.Ts, Value: math.Log(p.Value)})
	}
	slopeLn, interceptLn, r2 := statutil.LinearRegression(logPoints)
	confidence = r2
	lambda := -slopeLn
	h0 := math.Exp(interceptLn)
	ratePerDay = (math.Exp(slopeLn*24) - 1) * 100 // % change per day
	if lambda <= 0 || h0 <= 0 {
		return 0, confidence, ratePerDay, false
	}
	failureAtHours := math.Log(h0/failureThreshold) / lambda
	nowHours := hoursSpan(history)
	hours = failureAtHours - nowHours
	if hours <= 0 || math.IsInf(hours, 0) || math.IsNaN(hours) {
		return 0, confidence, ratePerDay, false
	}
	return hours, confidence, ratePerDay, true
}

// weibullRUL treats the linear model's threshold-crossing time as the
// Weibull scale (eta) and reports the median life of a fixed-shape
// wear-out distribution. See weibullShape's doc comment.
func weibullRUL(history []statutil.TimedValue, failureThreshold float64) (hours, confidence, ratePerDay float64, ok bool) {
	linHours, confidence, ratePerDay, ok := linearRUL(history, failureThreshold)
	if !ok {
		return 0, confidence, ratePerDay, false
	}
	eta := linHours + hoursSpan(history)
	medianLife := eta * math.Pow(math.Ln2, 1/weibullShape)
	hours = medianLife - hoursSpan(history)
	if hours <= 0 {
		return 0, confidence, ratePerDay, false
	}
	return hours, confidence, ratePerDay, true
}

func hoursSpan(history []statutil.TimedValue) float64 {
	if len(history) == 0 {
		return 0
	}
	return float64(history[len(history)-1].Ts-history[0].Ts) / 3_600_000
}

// classifyStatus buckets a device's degradation posture from the
// predicted RUL and its observed per-day rate relative to what's
// normal for the asset.
func classifyStatus(rulHours, ratePerDay, normalPerDay float64) model.RULStatus {
	switch {
	case rulHours < 24:
		return model.RULStatusNearFailure
	case normalPerDay > 0 && math.Abs(ratePerDay) > 2*normalPerDay:
		return model.RULStatusAccelerated
	case normalPerDay > 0 && math.Abs(ratePerDay) > normalPerDay*0.1:
		return model.RULStatusNormalDegradation
	default:
		return model.RULStatusHealthy
	}
}

// classifyRisk buckets remaining useful life into the standard
// <1d/1-7d/7-30d/>30d operational risk tiers.
func classifyRisk(rulHours float64) model.RULRiskLevel {
	days := rulHours / 24
	switch {
	case days < 1:
		return model.RULRiskCritical
	case days < 7:
		return model.RULRiskHigh
	case days < 30:
		return model.RULRiskMedium
	default:
		return model.RULRiskLow
	}
}

// recommendedMaintenanceTime schedules maintenance early enough that
// repair (two average repair-lead-time cycles, as a safety margin) still
// completes before the predicted failure point.
func recommendedMaintenanceTime(now int64, rulHours, avgRepairLeadHours float64) int64 {
	marginHours := math.Max(0, rulHours-2*avgRepairLeadHours)
	return now + int64(marginHours*3_600_000)
}

// FactorInput is one candidate contributing parameter for RankFactors:
// its own history and learned baseline.
type FactorInput struct {
	ParameterID  string
	History      []statutil.TimedValue
	BaselineMean float64
	BaselineStd  float64
}

// RankFactors scores each input by its own deviation z-score, weights
// them to sum to 1, and signs each by its own trend direction.
func RankFactors(inputs []FactorInput) []model.RULFactor {
	type scored struct {
		id    string
		z     float64
		slope float64
	}
	var items []scored
	var sumZ float64
	for _, in := range inputs {
		if len(in.History) == 0 {
			continue
		}
		current := in.History[len(in.History)-1].Value
		var z float64
		if in.BaselineStd > 0 {
			z = math.Abs(current-in.BaselineMean) / in.BaselineStd
		}
		var slope float64
		if len(in.History) >= 2 {
			slope, _, _ = statutil.LinearRegression(in.History)
		}
		items = append(items, scored{id: in.ParameterID, z: z, slope: slope})
		sumZ += z
	}
	factors := make([]model.RULFactor, 0, len(items))
	for _, it := range items {
		weight := 0.0
		if sumZ > 0 {
			weight = it.z / sumZ
		}
		sign := 0.0
		switch {
		case it.slope > 0:
			sign = 1
		case it.slope < 0:
			sign = -1
		}
		factors = append(factors, model.RULFactor{
			ParameterID:  it.id,
			Weight:       weight,
			Contribution: sign * weight,
		})
	}
	sort.SliceStable(factors, func(i, j int) bool {
		return math.Abs(factors[i].Contribution) > math.Abs(factors[j].Contribution)
	})
	return factors
}
