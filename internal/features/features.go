// Package features turns conditioned sample sequences into fixed-order
// feature vectors, one per sliding window.
package features

import (
	"iter"
	"math"
	"math/cmplx"

	"drink-detector/internal/dsp"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Vector holds feature values in the order given by Names
type Vector []float64

// Names returns the feature order a Vector follows. The order is part of the
// model artifact and must not change between training and later use.
func Names(useFFT bool) []string {
	names := make([]string, 0, dsp.NumChannels*4+6)
	for _, ch := range dsp.ChannelNames {
		prefix := ch + "_filtered"
		names = append(names,
			prefix+"_mean",
			prefix+"_std",
			prefix+"_max",
			prefix+"_min",
		)
	}
	names = append(names,
		"accel_mag_mean",
		"accel_mag_std",
		"gyro_mag_mean",
		"gyro_mag_std",
	)
	if useFFT {
		names = append(names, "ax_fft_mean", "ax_fft_std")
	}
	return names
}

// WindowCount is the number of full windows Extract yields for n samples
func WindowCount(n, window, step int) int {
	if window <= 0 || step <= 0 || n < window {
		return 0
	}
	return (n-window)/step + 1
}

// Extract slides a window of the given size over samples, advancing step
// samples each time, and yields each window's features with its label: the
// maximum member label, so a window is positive if any sample is. Trailing
// samples that do not fill a window are dropped. Windows holding an unlabeled
// sample are skipped. The sequence is lazy and can be ranged over repeatedly.
func Extract(samples []dsp.Conditioned, window, step int, useFFT bool) iter.Seq2[Vector, int] {
	return func(yield func(Vector, int) bool) {
		if window <= 0 || step <= 0 {
			return
		}
		for start := 0; start+window <= len(samples); start += step {
			w := samples[start : start+window]

			label, ok := windowLabel(w)
			if !ok {
				continue
			}
			if !yield(Compute(w, useFFT), label) {
				return
			}
		}
	}
}

// Collect drains Extract into parallel slices
func Collect(seq iter.Seq2[Vector, int]) ([]Vector, []int) {
	var (
		vectors []Vector
		labels  []int
	)
	for v, l := range seq {
		vectors = append(vectors, v)
		labels = append(labels, l)
	}
	return vectors, labels
}

func windowLabel(w []dsp.Conditioned) (int, bool) {
	label := 0
	for _, c := range w {
		if !c.Sample.Labeled() {
			return 0, false
		}
		label = max(label, *c.Sample.Label)
	}
	return label, true
}

// Compute derives the feature vector of one window. It has no state; the same
// window always yields the same vector. Undefined statistics become 0.
func Compute(w []dsp.Conditioned, useFFT bool) Vector {
	n := len(w)
	if n == 0 {
		return make(Vector, len(Names(useFFT)))
	}
	v := make(Vector, 0, len(Names(useFFT)))

	col := make([]float64, n)
	for ch := 0; ch < dsp.NumChannels; ch++ {
		for i, c := range w {
			col[i] = c.Channels[ch]
		}
		v = append(v,
			stat.Mean(col, nil),
			sampleStd(col),
			floats.Max(col),
			floats.Min(col),
		)
	}

	accel := make([]float64, n)
	gyro := make([]float64, n)
	for i, c := range w {
		accel[i] = math.Sqrt(c.Channels[dsp.AX]*c.Channels[dsp.AX] +
			c.Channels[dsp.AY]*c.Channels[dsp.AY] +
			c.Channels[dsp.AZ]*c.Channels[dsp.AZ])
		gyro[i] = math.Sqrt(c.Channels[dsp.GX]*c.Channels[dsp.GX] +
			c.Channels[dsp.GY]*c.Channels[dsp.GY] +
			c.Channels[dsp.GZ]*c.Channels[dsp.GZ])
	}
	v = append(v,
		stat.Mean(accel, nil),
		sampleStd(accel),
		stat.Mean(gyro, nil),
		sampleStd(gyro),
	)

	if useFFT {
		mean, std := spectrum(w)
		v = append(v, mean, std)
	}

	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[i] = 0
		}
	}
	return v
}

// sampleStd is the n-1 standard deviation; undefined for a single value
func sampleStd(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

// spectrum summarizes the magnitude of the first half of the ax spectrum
func spectrum(w []dsp.Conditioned) (mean, std float64) {
	n := len(w)
	half := n / 2
	if half == 0 {
		return 0, 0
	}

	ax := make([]float64, n)
	for i, c := range w {
		ax[i] = c.Channels[dsp.AX]
	}

	coeff := fourier.NewFFT(n).Coefficients(nil, ax)
	mags := make([]float64, half)
	for i := range mags {
		mags[i] = cmplx.Abs(coeff[i])
	}

	mean, variance := stat.PopMeanVariance(mags, nil)
	return mean, math.Sqrt(variance)
}
