package decoder

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// DiscreteTransition builds the row-stochastic regime-transition matrix.
// This is the only transition-model object the refinement loop replaces
// between iterations.
type DiscreteTransition interface {
	MakeMatrix(nStates int) (*mat.Dense, error)
}

// DiagonalDiscrete puts DiagonalValue on the diagonal and spreads the
// remainder evenly across the off-diagonal entries of each row. High
// diagonal values model sticky regimes.
type DiagonalDiscrete struct {
	DiagonalValue float64
}

// MakeMatrix implements DiscreteTransition.
func (d DiagonalDiscrete) MakeMatrix(nStates int) (*mat.Dense, error) {
	if d.DiagonalValue < 0 || d.DiagonalValue > 1 {
		return nil, fmt.Errorf("diagonal discrete: diagonal value %v outside [0, 1]", d.DiagonalValue)
	}
	m := mat.NewDense(nStates, nStates, nil)
	off := 0.0
	if nStates > 1 {
		off = (1 - d.DiagonalValue) / float64(nStates-1)
	}
	for i := 0; i < nStates; i++ {
		for j := 0; j < nStates; j++ {
			if i == j {
				if nStates == 1 {
					m.Set(i, j, 1)
				} else {
					m.Set(i, j, d.DiagonalValue)
				}
			} else {
				m.Set(i, j, off)
			}
		}
	}
	return m, nil
}

// UniformDiscrete makes every regime equally likely at every step.
type UniformDiscrete struct{}

// MakeMatrix implements DiscreteTransition.
func (UniformDiscrete) MakeMatrix(nStates int) (*mat.Dense, error) {
	m := mat.NewDense(nStates, nStates, nil)
	v := 1 / float64(nStates)
	for i := 0; i < nStates; i++ {
		for j := 0; j < nStates; j++ {
			m.Set(i, j, v)
		}
	}
	return m, nil
}

// RandomDiscrete draws each row from a uniform simplex. Useful as a
// deliberately uninformed starting point for the refinement loop.
type RandomDiscrete struct {
	Seed uint64
}

// MakeMatrix implements DiscreteTransition.
func (r RandomDiscrete) MakeMatrix(nStates int) (*mat.Dense, error) {
	rng := rand.New(rand.NewPCG(r.Seed, r.Seed^0x9e3779b97f4a7c15))
	m := mat.NewDense(nStates, nStates, nil)
	for i := 0; i < nStates; i++ {
		sum := 0.0
		for j := 0; j < nStates; j++ {
			v := rng.Float64()
			m.Set(i, j, v)
			sum += v
		}
		for j := 0; j < nStates; j++ {
			m.Set(i, j, m.At(i, j)/sum)
		}
	}
	return m, nil
}

// UserDefinedDiscrete uses a caller-supplied matrix, validated to be square
// and row-stochastic.
type UserDefinedDiscrete struct {
	Values *mat.Dense
}

// MakeMatrix implements DiscreteTransition.
func (u UserDefinedDiscrete) MakeMatrix(nStates int) (*mat.Dense, error) {
	if u.Values == nil {
		return nil, fmt.Errorf("user-defined discrete: nil matrix")
	}
	r, c := u.Values.Dims()
	if r != nStates || c != nStates {
		return nil, shapeErrorf("discrete transition is %d×%d, want %d×%d", r, c, nStates, nStates)
	}
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			v := u.Values.At(i, j)
			if v < 0 {
				return nil, fmt.Errorf("user-defined discrete: negative entry at (%d,%d)", i, j)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			return nil, fmt.Errorf("user-defined discrete: row %d sums to %v, want 1", i, sum)
		}
	}
	out := mat.NewDense(r, c, nil)
	out.Copy(u.Values)
	return out, nil
}

// EstimateDiscreteTransition re-estimates the regime-transition matrix from
// a decode result by expected-transition counting: the expected joint
// occupancy of (regime i at t, regime j at t+1) is accumulated across all
// time steps and normalized per row. Requires the acausal posterior.
func EstimateDiscreteTransition(res *Results, discrete *mat.Dense) (*mat.Dense, error) {
	if res.AcausalPosterior == nil {
		return nil, fmt.Errorf("estimate discrete transition: acausal posterior not computed")
	}
	nStates, c := discrete.Dims()
	if nStates != c || nStates != res.NStates {
		return nil, shapeErrorf("discrete transition is %d×%d, result has %d states", nStates, c, res.NStates)
	}

	causal := res.StateProbabilities(false)
	acausal := res.StateProbabilities(true)

	xi := mat.NewDense(nStates, nStates, nil)
	predicted := make([]float64, nStates)
	for t := 0; t+1 < res.NTime; t++ {
		for j := 0; j < nStates; j++ {
			p := 0.0
			for i := 0; i < nStates; i++ {
				p += causal[t*nStates+i] * discrete.At(i, j)
			}
			predicted[j] = p
		}
		for i := 0; i < nStates; i++ {
			for j := 0; j < nStates; j++ {
				if predicted[j] <= 0 {
					continue
				}
				w := causal[t*nStates+i] * discrete.At(i, j) * acausal[(t+1)*nStates+j] / predicted[j]
				xi.Set(i, j, xi.At(i, j)+w)
			}
		}
	}

	// Rows with no expected transitions keep their previous estimate.
	for i := 0; i < nStates; i++ {
		sum := mat.Sum(xi.RowView(i))
		if sum > 0 {
			for j := 0; j < nStates; j++ {
				xi.Set(i, j, xi.At(i, j)/sum)
			}
		} else {
			for j := 0; j < nStates; j++ {
				xi.Set(i, j, discrete.At(i, j))
			}
		}
	}
	return xi, nil
}
