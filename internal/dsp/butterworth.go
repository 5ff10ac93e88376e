// Package dsp implements the low-pass conditioning applied to motion channels
// before windowing: Butterworth design and zero-phase forward-backward filtering.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Butterworth designs a digital low-pass Butterworth filter of the given order
// with the -3 dB point at cutoff Hz for a signal sampled at fs Hz. It returns
// the transfer function numerator b and denominator a, with a[0] == 1.
func Butterworth(order int, cutoff, fs float64) (b, a []float64, err error) {
	if order < 1 {
		return nil, nil, fmt.Errorf("filter order must be positive, got %d", order)
	}
	wn := cutoff / (fs / 2)
	if wn <= 0 || wn >= 1 {
		return nil, nil, fmt.Errorf("cutoff %g Hz must lie strictly between 0 and Nyquist (%g Hz)", cutoff, fs/2)
	}

	// Analog prototype poles on the left half of the unit circle
	poles := make([]complex128, order)
	for i := range poles {
		m := float64(-order + 1 + 2*i)
		poles[i] = -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
	}

	// Pre-warp, scale to the cutoff, then map with the bilinear transform.
	// Design runs at a normalized rate of 2 so that wn maps onto Nyquist = 1.
	const fs2 = 4.0
	warped := fs2 * math.Tan(math.Pi*wn/2)

	gain := complex(math.Pow(warped, float64(order)), 0)
	denom := complex(1, 0)
	zPoles := make([]complex128, order)
	zZeros := make([]complex128, order)
	for i, p := range poles {
		p *= complex(warped, 0)
		zPoles[i] = (fs2 + p) / (fs2 - p)
		zZeros[i] = -1
		denom *= fs2 - p
	}
	k := real(gain / denom)

	bc := poly(zZeros)
	ac := poly(zPoles)

	b = make([]float64, len(bc))
	a = make([]float64, len(ac))
	for i := range bc {
		b[i] = k * real(bc[i])
	}
	for i := range ac {
		a[i] = real(ac[i])
	}
	return b, a, nil
}

// poly expands prod(x - r) into coefficients, highest power first
func poly(roots []complex128) []complex128 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	return c
}
