package decoder

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MovementData carries the observed position sequence used to fit
// empirical movement kernels, plus optional per-sample restrictions.
// All slices are indexed by time; nil optional slices mean "no restriction".
type MovementData struct {
	Position          [][]float64 // n_time × n_dims
	IsTraining        []bool
	EncodingGroups    []int
	EnvironmentLabels []string
}

// ContinuousTransition builds a bin-to-bin movement kernel for one ordered
// regime pair. Kernels are built once at fit time and never mutated by the
// refinement loop. Row b gives P(next bin | previous bin b); rows over
// interior bins are normalized, non-interior rows and columns are zero.
type ContinuousTransition interface {
	MakeKernel(env *Environment, data *MovementData) (*mat.Dense, error)
}

// RandomWalk is an unbiased Gaussian movement kernel: the probability of
// moving between two bins decays with the distance between their centers.
type RandomWalk struct {
	// MovementStd is the standard deviation of the per-step displacement,
	// in the same units as the bin centers.
	MovementStd float64
}

// MakeKernel implements ContinuousTransition.
func (rw RandomWalk) MakeKernel(env *Environment, _ *MovementData) (*mat.Dense, error) {
	if rw.MovementStd <= 0 {
		return nil, fmt.Errorf("random walk: movement std must be positive, got %v", rw.MovementStd)
	}
	return gaussianKernel(env, rw.MovementStd, 0), nil
}

// RandomWalkDirection1 is a Gaussian movement kernel restricted to
// non-decreasing movement along the first position dimension.
type RandomWalkDirection1 struct {
	MovementStd float64
}

// MakeKernel implements ContinuousTransition.
func (rw RandomWalkDirection1) MakeKernel(env *Environment, _ *MovementData) (*mat.Dense, error) {
	if rw.MovementStd <= 0 {
		return nil, fmt.Errorf("directed random walk: movement std must be positive, got %v", rw.MovementStd)
	}
	return gaussianKernel(env, rw.MovementStd, +1), nil
}

// RandomWalkDirection2 is a Gaussian movement kernel restricted to
// non-increasing movement along the first position dimension.
type RandomWalkDirection2 struct {
	MovementStd float64
}

// MakeKernel implements ContinuousTransition.
func (rw RandomWalkDirection2) MakeKernel(env *Environment, _ *MovementData) (*mat.Dense, error) {
	if rw.MovementStd <= 0 {
		return nil, fmt.Errorf("directed random walk: movement std must be positive, got %v", rw.MovementStd)
	}
	return gaussianKernel(env, rw.MovementStd, -1), nil
}

// Uniform is a flat movement kernel over the interior bins: the next bin is
// equally likely to be any interior bin regardless of the previous bin.
type Uniform struct{}

// MakeKernel implements ContinuousTransition.
func (Uniform) MakeKernel(env *Environment, _ *MovementData) (*mat.Dense, error) {
	n := env.NBins()
	interior := env.IsTrackInterior()
	k := mat.NewDense(n, n, nil)
	for b := 0; b < n; b++ {
		if !interior[b] {
			continue
		}
		for b2 := 0; b2 < n; b2++ {
			if interior[b2] {
				k.Set(b, b2, 1)
			}
		}
	}
	normalizeRows(k)
	return k, nil
}

// EmpiricalMovement estimates the movement kernel from consecutive observed
// positions, optionally restricted to a training subset and one encoding
// group. Bins never left during training fall back to a uniform row.
type EmpiricalMovement struct {
	// EncodingGroup restricts counting to samples with this group label.
	// A negative value counts all groups.
	EncodingGroup int
	// Speedup counts transitions between samples this many steps apart,
	// modeling faster-than-behavioral replay. Zero means 1.
	Speedup int
}

// MakeKernel implements ContinuousTransition.
func (em EmpiricalMovement) MakeKernel(env *Environment, data *MovementData) (*mat.Dense, error) {
	if data == nil || len(data.Position) == 0 {
		return nil, fmt.Errorf("empirical movement: no position data for environment %q", env.Name)
	}
	stride := em.Speedup
	if stride < 1 {
		stride = 1
	}

	n := env.NBins()
	interior := env.IsTrackInterior()
	k := mat.NewDense(n, n, nil)

	usable := func(t int) bool {
		if data.IsTraining != nil && !data.IsTraining[t] {
			return false
		}
		if em.EncodingGroup >= 0 && data.EncodingGroups != nil && data.EncodingGroups[t] != em.EncodingGroup {
			return false
		}
		if data.EnvironmentLabels != nil && data.EnvironmentLabels[t] != env.Name {
			return false
		}
		return true
	}

	for t := 0; t+stride < len(data.Position); t++ {
		if !usable(t) || !usable(t+stride) {
			continue
		}
		from := env.BinIndex(data.Position[t])
		to := env.BinIndex(data.Position[t+stride])
		if from < 0 || to < 0 || !interior[from] || !interior[to] {
			continue
		}
		k.Set(from, to, k.At(from, to)+1)
	}

	// Interior bins with no observed departures get a flat row so the
	// kernel never strands probability mass.
	nInterior := env.NInterior()
	for b := 0; b < n; b++ {
		if !interior[b] {
			continue
		}
		if mat.Sum(k.RowView(b)) == 0 {
			for b2 := 0; b2 < n; b2++ {
				if interior[b2] {
					k.Set(b, b2, 1/float64(nInterior))
				}
			}
		}
	}
	normalizeRows(k)
	return k, nil
}

// gaussianKernel builds a Gaussian movement kernel. direction restricts
// movement along the first position dimension: +1 keeps non-decreasing
// moves, -1 keeps non-increasing moves, 0 keeps all.
func gaussianKernel(env *Environment, std float64, direction int) *mat.Dense {
	n := env.NBins()
	centers := env.BinCenters()
	interior := env.IsTrackInterior()
	norm := distuv.Normal{Mu: 0, Sigma: std}

	k := mat.NewDense(n, n, nil)
	for b := 0; b < n; b++ {
		if !interior[b] {
			continue
		}
		for b2 := 0; b2 < n; b2++ {
			if !interior[b2] {
				continue
			}
			if direction > 0 && centers[b2][0] < centers[b][0] {
				continue
			}
			if direction < 0 && centers[b2][0] > centers[b][0] {
				continue
			}
			d := 0.0
			for dim := range centers[b] {
				diff := centers[b2][dim] - centers[b][dim]
				d += diff * diff
			}
			k.Set(b, b2, norm.Prob(math.Sqrt(d)))
		}
	}
	normalizeRows(k)
	return k
}

// normalizeRows scales every nonzero row of k to sum to 1 in place.
func normalizeRows(k *mat.Dense) {
	r, _ := k.Dims()
	for i := 0; i < r; i++ {
		row := k.RawRowView(i)
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		if sum > 0 {
			for j := range row {
				row[j] /= sum
			}
		}
	}
}
