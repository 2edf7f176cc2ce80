package cycle

import "math"

// AngleCurrentSample is one (angle, current) observation collected
// across historical cycles, the training input for the baseline fit.
type AngleCurrentSample struct {
	AngleDeg float64
	Current  float64
}

// PolynomialBaseline is the fitted quadratic c(θ) = Aθ² + Bθ + C model
// used to predict expected current at a given angle.
type PolynomialBaseline struct {
	A, B, C float64
	R2      float64
}

// Predict returns c(θ) for the fitted model.
func (p PolynomialBaseline) Predict(angleDeg float64) float64 {
	return p.A*angleDeg*angleDeg + p.B*angleDeg + p.C
}

// FitPolynomialBaseline performs a least-squares fit of the quadratic
// model over samples via the normal equations (XᵀX)β = Xᵀy, solved by
// Cholesky decomposition. Returns the zero value with R2=0 if fewer than
// 3 samples are given or the system is singular.
func FitPolynomialBaseline(samples []AngleCurrentSample) PolynomialBaseline {
	n := len(samples)
	if n < 3 {
		return PolynomialBaseline{}
	}

	// Normal equations for columns [θ², θ, 1].
	var xtx [3][3]float64
	var xty [3]float64
	for _, s := range samples {
		theta2 := s.AngleDeg * s.AngleDeg
		row := [3]float64{theta2, s.AngleDeg, 1}
		for i := 0; i < 3; i++ {
			xty[i] += row[i] * s.Current
			for j := 0; j < 3; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}

	A := [][]float64{xtx[0][:], xtx[1][:], xtx[2][:]}
	beta := solveLeastSquares(A, xty[:])
	if beta == nil {
		return PolynomialBaseline{}
	}

	model := PolynomialBaseline{A: beta[0], B: beta[1], C: beta[2]}
	model.R2 = rSquared(samples, model)
	return model
}

func rSquared(samples []AngleCurrentSample, model PolynomialBaseline) float64 {
	var meanY float64
	for _, s := range samples {
		meanY += s.Current
	}
	meanY /= float64(len(samples))

	var ssRes, ssTot float64
	for _, s := range samples {
		pred := model.Predict(s.AngleDeg)
		ssRes += (s.Current - pred) * (s.Current - pred)
		ssTot += (s.Current - meanY) * (s.Current - meanY)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

// BucketStat is the (mean, std, min, max) summary for one integer-degree
// angle bucket, maintained for quick per-angle reference independent of
// the polynomial fit.
type BucketStat struct {
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
	Count int64
}

// BuildAngleBuckets aggregates samples into per-integer-degree buckets.
func BuildAngleBuckets(samples []AngleCurrentSample) map[int]BucketStat {
	sums := make(map[int]float64)
	sumSqs := make(map[int]float64)
	counts := make(map[int]int64)
	mins := make(map[int]float64)
	maxs := make(map[int]float64)

	for _, s := range samples {
		bucket := int(math.Round(s.AngleDeg))
		sums[bucket] += s.Current
		sumSqs[bucket] += s.Current * s.Current
		counts[bucket]++
		if v, ok := mins[bucket]; !ok || s.Current < v {
			mins[bucket] = s.Current
		}
		if v, ok := maxs[bucket]; !ok || s.Current > v {
			maxs[bucket] = s.Current
		}
	}

	out := make(map[int]BucketStat, len(counts))
	for bucket, count := range counts {
		mean := sums[bucket] / float64(count)
		variance := sumSqs[bucket]/float64(count) - mean*mean
		if variance < 0 {
			variance = 0
		}
		out[bucket] = BucketStat{
			Mean:  mean,
			Std:   math.Sqrt(variance),
			Min:   mins[bucket],
			Max:   maxs[bucket],
			Count: count,
		}
	}
	return out
}
