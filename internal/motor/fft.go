package motor

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// fftWindowSize is the fixed window length frequency profiling operates
// on. Must be a power of two for the radix-2 Cooley-Tukey transform.
const fftWindowSize = 2048

// fundamentalMinHz/fundamentalMaxHz bound the search for the shaft-rotation
// fundamental peak.
const (
	fundamentalMinHz = 45.0
	fundamentalMaxHz = 65.0
	maxHarmonic      = 10
)

// ComputeFrequencyProfile extracts a FrequencyProfile from a current
// signal window already resampled to sampleRateHz. Requires at least
// fftWindowSize samples; the most recent window is used. No ecosystem DSP
// package is present anywhere in the retrieved corpus, so the transform
// is a direct radix-2 Cooley-Tukey implementation.
func ComputeFrequencyProfile(samples []float64, sampleRateHz float64, bearing model.MotorModel) (model.FrequencyProfile, error) {
	if len(samples) < fftWindowSize {
		return model.FrequencyProfile{}, fmt.Errorf("motor: need %d samples for frequency profile, got %d", fftWindowSize, len(samples))
	}
	if sampleRateHz <= 0 {
		return model.FrequencyProfile{}, fmt.Errorf("motor: sample rate must be positive")
	}

	window := samples[len(samples)-fftWindowSize:]
	spectrum := fft(hannWindow(window))
	magnitude := make([]float64, fftWindowSize/2)
	for i := range magnitude {
		magnitude[i] = cmplx.Abs(spectrum[i]) / float64(fftWindowSize)
	}
	binHz := sampleRateHz / float64(fftWindowSize)

	fundamentalBin, ok := peakBinInRange(magnitude, binHz, fundamentalMinHz, fundamentalMaxHz)
	if !ok {
		return model.FrequencyProfile{}, fmt.Errorf("motor: no fundamental peak found in [%v,%v]Hz", fundamentalMinHz, fundamentalMaxHz)
	}
	fundamentalHz := float64(fundamentalBin) * binHz
	fundamentalAmp := magnitude[fundamentalBin]

	harmonics := make([]float64, maxHarmonic-1)
	var harmonicSumSq float64
	for h := 2; h <= maxHarmonic; h++ {
		bin := int(math.Round(fundamentalHz * float64(h) / binHz))
		amp := 0.0
		if bin < len(magnitude) {
			amp = magnitude[bin]
		}
		harmonics[h-2] = amp
		harmonicSumSq += amp * amp
	}

	thd := 0.0
	if fundamentalAmp > 0 {
		thd = math.Sqrt(harmonicSumSq) / fundamentalAmp * 100
	}

	bpfo, bpfi, bsf, ftf := bearingFaultFrequencies(bearing, fundamentalHz)

	return model.FrequencyProfile{
		FundamentalHz:        fundamentalHz,
		FundamentalAmplitude: fundamentalAmp,
		HarmonicAmplitudes:   harmonics,
		THDPercent:           thd,
		BPFOAmplitude:        nearestBinAmplitude(magnitude, binHz, bpfo),
		BPFIAmplitude:        nearestBinAmplitude(magnitude, binHz, bpfi),
		BSFAmplitude:         nearestBinAmplitude(magnitude, binHz, bsf),
		FTFAmplitude:         nearestBinAmplitude(magnitude, binHz, ftf),
		NoiseFloor:           medianFloor(magnitude),
	}, nil
}

// bearingFaultFrequencies derives the four classic rolling-element fault
// frequencies from the motor's bearing geometry and the shaft rotation
// rate (approximated by the detected fundamental).
func bearingFaultFrequencies(bearing model.MotorModel, shaftHz float64) (bpfo, bpfi, bsf, ftf float64) {
	if bearing.BearingPitchDiameterMM <= 0 || bearing.BearingBallCount <= 0 {
		return 0, 0, 0, 0
	}
	n := float64(bearing.BearingBallCount)
	ratio := bearing.BearingBallDiameterMM / bearing.BearingPitchDiameterMM
	theta := bearing.ContactAngleDeg * math.Pi / 180

	bpfo = (n / 2) * shaftHz * (1 - ratio*math.Cos(theta))
	bpfi = (n / 2) * shaftHz * (1 + ratio*math.Cos(theta))
	if ratio > 0 {
		bsf = (1 / (2 * ratio)) * shaftHz * (1 - ratio*ratio*math.Cos(theta)*math.Cos(theta))
	}
	ftf = (shaftHz / 2) * (1 - ratio*math.Cos(theta))
	return bpfo, bpfi, bsf, ftf
}

func peakBinInRange(magnitude []float64, binHz, minHz, maxHz float64) (int, bool) {
	minBin := int(math.Ceil(minHz / binHz))
	maxBin := int(math.Floor(maxHz / binHz))
	if minBin < 0 {
		minBin = 0
	}
	if maxBin >= len(magnitude) {
		maxBin = len(magnitude) - 1
	}
	best := -1
	bestAmp := 0.0
	for bin := minBin; bin <= maxBin; bin++ {
		if magnitude[bin] > bestAmp {
			bestAmp = magnitude[bin]
			best = bin
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

func nearestBinAmplitude(magnitude []float64, binHz, freqHz float64) float64 {
	if freqHz <= 0 {
		return 0
	}
	bin := int(math.Round(freqHz / binHz))
	if bin < 0 || bin >= len(magnitude) {
		return 0
	}
	return magnitude[bin]
}

// medianFloor estimates the spectrum's noise floor as the median
// magnitude across all bins excluding DC.
func medianFloor(magnitude []float64) float64 {
	if len(magnitude) <= 1 {
		return 0
	}
	sorted := make([]float64, len(magnitude)-1)
	copy(sorted, magnitude[1:])
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

// hannWindow applies a Hann window to reduce spectral leakage before the
// transform, returning a complex input suitable for fft.
func hannWindow(samples []float64) []complex128 {
	n := len(samples)
	out := make([]complex128, n)
	for i, v := range samples {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		out[i] = complex(v*w, 0)
	}
	return out
}

// fft computes the discrete Fourier transform of x (length must be a
// power of two) via recursive radix-2 Cooley-Tukey decimation in time.
func fft(x []complex128) []complex128 {
	n := len(x)
	if n == 1 {
		return x
	}
	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}
	even = fft(even)
	odd = fft(odd)

	out := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		twiddle := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n))) * odd[k]
		out[k] = even[k] + twiddle
		out[k+n/2] = even[k] - twiddle
	}
	return out
}
