package decoder

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FilterResult holds the output of one causal filtering pass.
type FilterResult struct {
	// Posterior is the causal posterior, flat (nTime × nStates × nBins).
	Posterior []float64
	// DataLogLikelihood is the sum of the per-step log normalizers.
	DataLogLikelihood float64
	// Degenerate is true if the predictive mass underflowed to exactly
	// zero at some step. Posteriors from that step on are zero and
	// DataLogLikelihood is -Inf.
	Degenerate bool
}

// CausalDecode runs the forward filtering recursion. It is a pure function
// of its inputs: initial is the joint prior (nStates × nBins, summing to 1),
// jt the joint transition model, and scaledLikelihood the per-step rescaled
// emission likelihood (nTime × nStates × nBins). Inputs are never mutated.
func CausalDecode(initial []float64, jt *JointTransition, scaledLikelihood []float64, nTime int) (*FilterResult, error) {
	s, b := jt.NStates(), jt.NBins()
	if err := checkFilterShapes(len(initial), len(scaledLikelihood), nTime, s, b); err != nil {
		return nil, err
	}

	post := make([]float64, nTime*s*b)
	pred := make([]float64, s*b)
	tmp := mat.NewVecDense(b, nil)

	logLik := 0.0
	degenerate := false
	for t := 0; t < nTime; t++ {
		if degenerate {
			continue // zero posterior propagates
		}
		if t == 0 {
			copy(pred, initial)
		} else {
			predictJoint(pred, post[(t-1)*s*b:t*s*b], jt, tmp)
		}

		cur := post[t*s*b : (t+1)*s*b]
		lik := scaledLikelihood[t*s*b : (t+1)*s*b]
		norm := 0.0
		for i := range cur {
			v := pred[i] * lik[i]
			cur[i] = v
			norm += v
		}
		if norm <= 0 {
			degenerate = true
			logLik = math.Inf(-1)
			for i := range cur {
				cur[i] = 0
			}
			continue
		}
		floats.Scale(1/norm, cur)
		logLik += math.Log(norm)
	}

	return &FilterResult{Posterior: post, DataLogLikelihood: logLik, Degenerate: degenerate}, nil
}

// AcausalDecode runs the backward smoothing recursion over an existing
// causal posterior, returning the smoothed posterior with the same shape.
// Division by a predictive distribution with ~0 mass is treated as a zero
// correction term rather than propagating NaN or Inf.
func AcausalDecode(causal []float64, jt *JointTransition, nTime int) ([]float64, error) {
	s, b := jt.NStates(), jt.NBins()
	if len(causal) != nTime*s*b {
		return nil, shapeErrorf("causal posterior has %d entries, want %d×%d×%d", len(causal), nTime, s, b)
	}
	if nTime == 0 {
		return []float64{}, nil
	}

	smoothed := make([]float64, len(causal))
	copy(smoothed[(nTime-1)*s*b:], causal[(nTime-1)*s*b:])

	pred := make([]float64, s*b)
	ratio := make([]float64, s*b)
	back := make([]float64, s*b)
	tmp := mat.NewVecDense(b, nil)

	for t := nTime - 2; t >= 0; t-- {
		post := causal[t*s*b : (t+1)*s*b]
		next := smoothed[(t+1)*s*b : (t+2)*s*b]

		predictJoint(pred, post, jt, tmp)
		for i := range ratio {
			if pred[i] > 0 {
				ratio[i] = next[i] / pred[i]
			} else {
				ratio[i] = 0
			}
		}

		// Back-propagate the correction through the transposed tensor:
		// back[i,b] = Σ_j discrete[i,j] * (kernel[i,j] · ratio[j,:]).
		for i := range back {
			back[i] = 0
		}
		for i := 0; i < s; i++ {
			for j := 0; j < s; j++ {
				w := jt.Weight(i, j)
				if w == 0 {
					continue
				}
				tmp.MulVec(jt.Kernel(i, j), mat.NewVecDense(b, ratio[j*b:(j+1)*b]))
				floats.AddScaled(back[i*b:(i+1)*b], w, tmp.RawVector().Data)
			}
		}

		cur := smoothed[t*s*b : (t+1)*s*b]
		norm := 0.0
		for k := range cur {
			v := post[k] * back[k]
			cur[k] = v
			norm += v
		}
		if norm > 0 {
			floats.Scale(1/norm, cur)
		}
	}

	return smoothed, nil
}

// predictJoint computes the one-step predictive distribution
// pred[j,b'] = Σ_i Σ_b prev[i,b] * discrete[i,j] * kernel[i,j][b,b']
// as a batch of vector-matrix contractions.
func predictJoint(pred, prev []float64, jt *JointTransition, tmp *mat.VecDense) {
	s, b := jt.NStates(), jt.NBins()
	for i := range pred {
		pred[i] = 0
	}
	for i := 0; i < s; i++ {
		prevRow := mat.NewVecDense(b, prev[i*b:(i+1)*b])
		for j := 0; j < s; j++ {
			w := jt.Weight(i, j)
			if w == 0 {
				continue
			}
			tmp.MulVec(jt.Kernel(i, j).T(), prevRow)
			floats.AddScaled(pred[j*b:(j+1)*b], w, tmp.RawVector().Data)
		}
	}
}

// checkFilterShapes fails fast, before any recursion, when the inputs'
// dimensions are inconsistent.
func checkFilterShapes(nInitial, nLikelihood, nTime, nStates, nBins int) error {
	if nTime <= 0 {
		return shapeErrorf("need at least 1 time step, got %d", nTime)
	}
	if nInitial != nStates*nBins {
		return shapeErrorf("initial distribution has %d entries, want %d×%d", nInitial, nStates, nBins)
	}
	if nLikelihood != nTime*nStates*nBins {
		return shapeErrorf("likelihood has %d entries, want %d×%d×%d", nLikelihood, nTime, nStates, nBins)
	}
	return nil
}
