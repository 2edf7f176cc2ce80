package cycle

import (
	"math"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// Sample is one (timestamp, value) observation from the angle or current
// time series fed into cycle detection.
type Sample struct {
	Ts    int64
	Value float64
}

// DetectCycles finds work cycles via upward/downward angle_threshold
// crossings, keeping only those whose duration falls within
// [minDurationS, maxDurationS]. baseline may be nil if no fit exists yet
// (BaselineDeviationPct is left at 0 in that case).
func DetectCycles(deviceID, segmentID string, angle, motor1, motor2 []Sample, angleThreshold, minDurationS, maxDurationS float64, baseline *PolynomialBaseline) []model.WorkCycle {
	var cycles []model.WorkCycle
	var startTs int64
	inCycle := false

	for i := 1; i < len(angle); i++ {
		prev, cur := angle[i-1], angle[i]
		if !inCycle && prev.Value < angleThreshold && cur.Value >= angleThreshold {
			startTs = cur.Ts
			inCycle = true
			continue
		}
		if inCycle && prev.Value >= angleThreshold && cur.Value < angleThreshold {
			endTs := cur.Ts
			inCycle = false
			durationS := float64(endTs-startTs) / 1000
			if durationS < minDurationS || durationS > maxDurationS {
				continue
			}
			cycles = append(cycles, buildCycle(deviceID, segmentID, startTs, endTs, durationS, angle, motor1, motor2, baseline))
		}
	}
	return cycles
}

func buildCycle(deviceID, segmentID string, startTs, endTs int64, durationS float64, angle, motor1, motor2 []Sample, baseline *PolynomialBaseline) model.WorkCycle {
	angleWindow := windowSamples(angle, startTs, endTs)
	m1Window := windowSamples(motor1, startTs, endTs)
	m2Window := windowSamples(motor2, startTs, endTs)

	m1Peak, m1Avg := peakAndAvg(m1Window)
	m2Peak, m2Avg := peakAndAvg(m2Window)

	balance := 1.0
	if m2Avg != 0 {
		balance = m1Avg / m2Avg
	}

	maxAngle := 0.0
	for _, s := range angleWindow {
		if s.Value > maxAngle {
			maxAngle = s.Value
		}
	}

	energy := trapezoidalEnergy(m1Window) + trapezoidalEnergy(m2Window)

	deviationPct := 0.0
	if baseline != nil {
		deviationPct = meanBaselineDeviationPct(angleWindow, m1Window, *baseline)
	}

	return model.WorkCycle{
		DeviceID:             deviceID,
		SegmentID:            segmentID,
		Start:                startTs,
		End:                  endTs,
		DurationS:            durationS,
		MaxAngle:             maxAngle,
		Motor1PeakCurrent:    m1Peak,
		Motor1AvgCurrent:     m1Avg,
		Motor2PeakCurrent:    m2Peak,
		Motor2AvgCurrent:     m2Avg,
		Energy:               energy,
		BalanceRatio:         balance,
		BaselineDeviationPct: deviationPct,
	}
}

func windowSamples(samples []Sample, start, end int64) []Sample {
	var out []Sample
	for _, s := range samples {
		if s.Ts >= start && s.Ts <= end {
			out = append(out, s)
		}
	}
	return out
}

func peakAndAvg(samples []Sample) (peak, avg float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		v := math.Abs(s.Value)
		if v > peak {
			peak = v
		}
		sum += s.Value
	}
	return peak, sum / float64(len(samples))
}

// trapezoidalEnergy integrates current over time using the trapezoidal
// rule, in amp-seconds.
func trapezoidalEnergy(samples []Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(samples); i++ {
		dtS := float64(samples[i].Ts-samples[i-1].Ts) / 1000
		total += 0.5 * (samples[i].Value + samples[i-1].Value) * dtS
	}
	return total
}

// meanBaselineDeviationPct averages |actual-predicted|/predicted across
// motor1 samples matched to their nearest angle sample, skipping points
// where the baseline predicts zero.
func meanBaselineDeviationPct(angleWindow, currentWindow []Sample, baseline PolynomialBaseline) float64 {
	if len(angleWindow) == 0 || len(currentWindow) == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, cs := range currentWindow {
		angleAtTs := nearestValue(angleWindow, cs.Ts)
		predicted := baseline.Predict(angleAtTs)
		if predicted == 0 {
			continue
		}
		sum += math.Abs(cs.Value-predicted) / math.Abs(predicted)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) * 100
}

func nearestValue(samples []Sample, ts int64) float64 {
	best := samples[0]
	bestDiff := int64(math.MaxInt64)
	for _, s := range samples {
		diff := s.Ts - ts
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = s
		}
	}
	return best.Value
}
