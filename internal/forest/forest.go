// Package forest implements a seeded random forest of CART classification
// trees split on Gini impurity.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Params controls forest growth
type Params struct {
	Trees       int   `json:"trees"`
	MaxDepth    int   `json:"max_depth"` // 0 means unlimited
	MinSplit    int   `json:"min_split"`
	MaxFeatures int   `json:"max_features"` // 0 means sqrt of the feature count
	Seed        int64 `json:"seed"`
}

// Forest is a fitted ensemble. It serializes to JSON as is.
type Forest struct {
	Params   Params  `json:"params"`
	Classes  []int   `json:"classes"`
	Features int     `json:"features"`
	Trees    []*Node `json:"trees"`
}

// Node is either a split on Feature at Threshold (left is <=) or a leaf
// holding the class distribution of its training samples
type Node struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *Node     `json:"left,omitempty"`
	Right     *Node     `json:"right,omitempty"`
	Dist      []float64 `json:"dist,omitempty"`
}

// Leaf reports whether the node is terminal
func (n *Node) Leaf() bool {
	return n.Left == nil
}

// ErrEmpty is returned by Fit when there is nothing to learn from
var ErrEmpty = errors.New("no training samples")

// Fit grows p.Trees trees in parallel. Each tree draws its bootstrap sample
// and feature subsets from its own generator, seeded in order from p.Seed, so
// the result does not depend on scheduling.
func Fit(ctx context.Context, x [][]float64, y []int, p Params) (*Forest, error) {
	if len(x) == 0 {
		return nil, ErrEmpty
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("have %d rows but %d labels", len(x), len(y))
	}
	nf := len(x[0])
	for i, row := range x {
		if len(row) != nf {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), nf)
		}
	}
	if p.Trees <= 0 {
		return nil, fmt.Errorf("tree count must be positive, got %d", p.Trees)
	}
	if p.MinSplit < 2 {
		p.MinSplit = 2
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > nf {
		p.MaxFeatures = max(1, int(math.Sqrt(float64(nf))))
	}

	classes := slices.Clone(y)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	yi := make([]int, len(y))
	for i, c := range y {
		yi[i] = index[c]
	}

	master := rand.New(rand.NewPCG(uint64(p.Seed), uint64(p.Seed)))
	seeds := make([]uint64, p.Trees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	f := &Forest{
		Params:   p,
		Classes:  classes,
		Features: nf,
		Trees:    make([]*Node, p.Trees),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range p.Trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b := &builder{
				x:       x,
				y:       yi,
				classes: len(classes),
				params:  p,
				rng:     rand.New(rand.NewPCG(seeds[i], uint64(i))),
			}
			f.Trees[i] = b.grow(b.bootstrap(), 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// Proba averages the leaf distributions reached by x across all trees
func (f *Forest) Proba(x []float64) []float64 {
	out := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		n := t
		for !n.Leaf() {
			if x[n.Feature] <= n.Threshold {
				n = n.Left
			} else {
				n = n.Right
			}
		}
		for i, v := range n.Dist {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out
}

// Predict returns the most probable class; ties go to the smaller class
func (f *Forest) Predict(x []float64) int {
	proba := f.Proba(x)
	best := 0
	for i := 1; i < len(proba); i++ {
		if proba[i] > proba[best] {
			best = i
		}
	}
	return f.Classes[best]
}

// PredictAll classifies each row of x
func (f *Forest) PredictAll(x [][]float64) []int {
	out := make([]int, len(x))
	for i, row := range x {
		out[i] = f.Predict(row)
	}
	return out
}

type builder struct {
	x       [][]float64
	y       []int
	classes int
	params  Params
	rng     *rand.Rand
}

func (b *builder) bootstrap() []int {
	n := len(b.x)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = b.rng.IntN(n)
	}
	return idx
}

func (b *builder) counts(idx []int) []float64 {
	c := make([]float64, b.classes)
	for _, i := range idx {
		c[b.y[i]]++
	}
	return c
}

func (b *builder) leaf(counts []float64, total int) *Node {
	dist := make([]float64, len(counts))
	if total == 0 {
		return &Node{Dist: dist}
	}
	for i, c := range counts {
		dist[i] = c / float64(total)
	}
	return &Node{Dist: dist}
}

func (b *builder) grow(idx []int, depth int) *Node {
	counts := b.counts(idx)
	if len(idx) < b.params.MinSplit ||
		(b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) ||
		gini(counts, float64(len(idx))) == 0 {
		return b.leaf(counts, len(idx))
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		return b.leaf(counts, len(idx))
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.grow(left, depth+1),
		Right:     b.grow(right, depth+1),
	}
}

// bestSplit scans a random feature subset for the threshold that minimizes
// the weighted Gini impurity of the two children
func (b *builder) bestSplit(idx []int, counts []float64) (int, float64, bool) {
	n := float64(len(idx))
	bestScore := gini(counts, n)
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := slices.Clone(idx)
	left := make([]float64, b.classes)
	right := make([]float64, b.classes)

	for _, feature := range b.rng.Perm(len(b.x[0]))[:b.params.MaxFeatures] {
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.x[sorted[i]][feature] < b.x[sorted[j]][feature]
		})
		clear(left)
		copy(right, counts)

		for k := 0; k < len(sorted)-1; k++ {
			c := b.y[sorted[k]]
			left[c]++
			right[c]--

			lo, hi := b.x[sorted[k]][feature], b.x[sorted[k+1]][feature]
			if lo == hi {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			score := (nl*gini(left, nl) + nr*gini(right, nr)) / n
			if score < bestScore {
				bestScore = score
				bestFeature = feature
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func gini(counts []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / total
		g -= p * p
	}
	return g
}
