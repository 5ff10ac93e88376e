package dsp

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// LFilter runs x through the IIR filter (b, a) in transposed direct form II.
// zi holds the initial delay state (len max(len(a), len(b))-1) and may be nil.
func LFilter(b, a, x, zi []float64) []float64 {
	b, a = normalize(b, a)
	n := len(a)

	z := make([]float64, n)
	copy(z, zi)

	y := make([]float64, len(x))
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for j := 1; j < n; j++ {
			z[j-1] = b[j]*xi + z[j] - a[j]*yi
		}
		y[i] = yi
	}
	return y
}

// LFilterZI returns the steady-state delay state for a unit step input
func LFilterZI(b, a []float64) ([]float64, error) {
	b, a = normalize(b, a)
	n := len(a) - 1
	if n == 0 {
		return nil, nil
	}

	// (I - companion(a)^T) zi = b[1:] - a[1:]*b[0]
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for j := 0; j < n; j++ {
		m[j][0] += a[j+1]
	}
	for i := 1; i < n; i++ {
		m[i-1][i] -= 1
	}

	rhs := make([]float64, n)
	for i := range rhs {
		rhs[i] = b[i+1] - a[i+1]*b[0]
	}

	return solve(m, rhs)
}

// FiltFilt applies (b, a) forward and then backward, so the output has zero
// phase shift and stays index-aligned with x. Edges are padded with an odd
// reflection of 3*max(len(a), len(b)) samples, shortened for short signals.
func FiltFilt(b, a, x []float64) ([]float64, error) {
	if len(x) < 2 {
		return slices.Clone(x), nil
	}

	b, a = normalize(b, a)
	edge := min(3*len(a), len(x)-1)

	zi, err := LFilterZI(b, a)
	if err != nil {
		return nil, err
	}

	ext := oddExtend(x, edge)

	y := LFilter(b, a, ext, scale(zi, ext[0]))
	slices.Reverse(y)
	y = LFilter(b, a, y, scale(zi, y[0]))
	slices.Reverse(y)

	return y[edge : len(y)-edge], nil
}

func oddExtend(x []float64, edge int) []float64 {
	n := len(x)
	ext := make([]float64, 0, n+2*edge)
	for i := edge; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-edge; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}
	return ext
}

// normalize pads b and a to equal length and divides through by a[0]
func normalize(b, a []float64) ([]float64, []float64) {
	n := max(len(a), len(b))
	nb := make([]float64, n)
	na := make([]float64, n)
	copy(nb, b)
	copy(na, a)
	if na[0] != 1 && na[0] != 0 {
		a0 := na[0]
		for i := range nb {
			nb[i] /= a0
			na[i] /= a0
		}
	}
	return nb, na
}

func scale(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * k
	}
	return out
}

// solve returns the x with m x = rhs
func solve(m [][]float64, rhs []float64) ([]float64, error) {
	n := len(rhs)
	dense := mat.NewDense(n, n, nil)
	for i := range m {
		dense.SetRow(i, m[i])
	}

	var x mat.VecDense
	if err := x.SolveVec(dense, mat.NewVecDense(n, slices.Clone(rhs))); err != nil {
		return nil, fmt.Errorf("failed to solve filter initial state: %w", err)
	}
	return mat.Col(nil, 0, &x), nil
}
