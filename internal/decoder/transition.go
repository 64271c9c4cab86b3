package decoder

import (
	"gonum.org/v1/gonum/mat"
)

// JointTransition is the combined discrete×continuous transition model over
// the full joint state space: the implied tensor is
//
//	joint[i, j, b, b'] = discrete[i, j] * kernel[i, j][b, b']
//
// Kernels are immutable once built; WithDiscrete produces a new value
// sharing the kernels with an updated discrete matrix, which is how the
// refinement loop swaps in re-estimated regime transitions.
type JointTransition struct {
	nStates int
	nBins   int

	discrete *mat.Dense   // nStates × nStates, row-stochastic
	kernels  []*mat.Dense // nStates*nStates entries, each nBins × nBins
}

// NewJointTransition validates shapes and assembles the joint model.
// kernels[i*nStates+j] is the continuous kernel for the ordered regime pair
// (i, j); every kernel must be nBins × nBins.
func NewJointTransition(discrete *mat.Dense, kernels []*mat.Dense, nBins int) (*JointTransition, error) {
	r, c := discrete.Dims()
	if r != c {
		return nil, shapeErrorf("discrete transition is %d×%d, want square", r, c)
	}
	if len(kernels) != r*r {
		return nil, shapeErrorf("got %d continuous kernels, want %d for %d states", len(kernels), r*r, r)
	}
	for idx, k := range kernels {
		kr, kc := k.Dims()
		if kr != nBins || kc != nBins {
			return nil, shapeErrorf("kernel for pair (%d,%d) is %d×%d, want %d×%d",
				idx/r, idx%r, kr, kc, nBins, nBins)
		}
	}
	return &JointTransition{nStates: r, nBins: nBins, discrete: discrete, kernels: kernels}, nil
}

// NStates returns the number of discrete regimes.
func (jt *JointTransition) NStates() int { return jt.nStates }

// NBins returns the shared spatial bin count.
func (jt *JointTransition) NBins() int { return jt.nBins }

// Weight returns the discrete transition probability for the pair (i, j).
func (jt *JointTransition) Weight(i, j int) float64 { return jt.discrete.At(i, j) }

// Kernel returns the continuous kernel for the pair (i, j). Callers must
// treat it as read-only.
func (jt *JointTransition) Kernel(i, j int) *mat.Dense { return jt.kernels[i*jt.nStates+j] }

// Discrete returns a copy of the discrete transition matrix.
func (jt *JointTransition) Discrete() *mat.Dense {
	out := mat.NewDense(jt.nStates, jt.nStates, nil)
	out.Copy(jt.discrete)
	return out
}

// WithDiscrete returns a new joint transition with the same continuous
// kernels and a replacement discrete matrix.
func (jt *JointTransition) WithDiscrete(discrete *mat.Dense) (*JointTransition, error) {
	r, c := discrete.Dims()
	if r != jt.nStates || c != jt.nStates {
		return nil, shapeErrorf("discrete transition is %d×%d, want %d×%d", r, c, jt.nStates, jt.nStates)
	}
	return &JointTransition{nStates: jt.nStates, nBins: jt.nBins, discrete: discrete, kernels: jt.kernels}, nil
}

// Tensor materializes the full joint transition tensor as a flat slice with
// layout [i][j][b][b']. Used by the accelerated float32 path.
func (jt *JointTransition) Tensor() []float64 {
	s, b := jt.nStates, jt.nBins
	out := make([]float64, s*s*b*b)
	for i := 0; i < s; i++ {
		for j := 0; j < s; j++ {
			w := jt.discrete.At(i, j)
			k := jt.Kernel(i, j)
			base := (i*s + j) * b * b
			for bb := 0; bb < b; bb++ {
				row := k.RawRowView(bb)
				for b2, v := range row {
					out[base+bb*b+b2] = w * v
				}
			}
		}
	}
	return out
}

// Tensor32 is Tensor converted to the accelerated path's float32 precision.
func (jt *JointTransition) Tensor32() []float32 {
	t := jt.Tensor()
	out := make([]float32, len(t))
	for i, v := range t {
		out[i] = float32(v)
	}
	return out
}

// compact restricts the joint transition to the bins listed in keep,
// dropping all rows and columns for masked-out bins. The normalizing
// constants of the recursion then sum over interior bins only.
func (jt *JointTransition) compact(keep []int) *JointTransition {
	n := len(keep)
	kernels := make([]*mat.Dense, len(jt.kernels))
	for idx, k := range jt.kernels {
		sub := mat.NewDense(n, n, nil)
		for a, ba := range keep {
			for b, bb := range keep {
				sub.Set(a, b, k.At(ba, bb))
			}
		}
		kernels[idx] = sub
	}
	return &JointTransition{nStates: jt.nStates, nBins: n, discrete: jt.discrete, kernels: kernels}
}
