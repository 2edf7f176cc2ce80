// Package statutil holds small numerical helpers (linear regression,
// exponential smoothing, Pearson correlation) shared by the health and
// prognostics engines, factored out to avoid duplicating the same
// least-squares algebra in both.
package statutil

import "math"

// TimedValue is one (timestamp-ms, value) observation used as input to
// LinearRegression.
type TimedValue struct {
	Ts    int64
	Value float64
}

// LinearRegression fits value = slope*hours + intercept over points,
// with hours measured relative to the first point's timestamp so the
// intercept and slope stay numerically well-scaled regardless of epoch
// magnitude. Returns slope per hour, intercept, and R².
func LinearRegression(points []TimedValue) (slopePerHour, intercept, r2 float64) {
	n := len(points)
	if n < 2 {
		return 0, 0, 0
	}
	t0 := points[0].Ts
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range points {
		xs[i] = float64(p.Ts-t0) / 3_600_000
		ys[i] = p.Value
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxy, sxx, syy float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 {
		return 0, meanY, 0
	}
	slopePerHour = sxy / sxx
	intercept = meanY - slopePerHour*meanX

	if syy == 0 {
		return slopePerHour, intercept, 1
	}
	var ssRes float64
	for i := range xs {
		pred := slopePerHour*xs[i] + intercept
		diff := ys[i] - pred
		ssRes += diff * diff
	}
	r2 = 1 - ssRes/syy
	if r2 < 0 {
		r2 = 0
	}
	return slopePerHour, intercept, r2
}

// ExponentialSmoothing returns the one-step-ahead forecast from a series
// using simple exponential smoothing with the given alpha in (0,1].
func ExponentialSmoothing(values []float64, alpha float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := values[0]
	for _, v := range values[1:] {
		s = alpha*v + (1-alpha)*s
	}
	return s
}

// PearsonCorrelation computes r over two equal-length aligned series.
// Returns 0 if either series has zero variance or the inputs mismatch in
// length.
func PearsonCorrelation(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var num, denomA, denomB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		denomA += da * da
		denomB += db * db
	}
	if denomA == 0 || denomB == 0 {
		return 0
	}
	return num / math.Sqrt(denomA*denomB)
}
