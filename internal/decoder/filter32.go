package decoder

import "math"

// The float32 path is the accelerated variant of the engine: the identical
// recursion, masking, and normalization semantics as CausalDecode and
// AcausalDecode, computed over flat float32 arrays with the fully
// materialized joint transition tensor. It trades working precision for
// cache-friendly contiguous arithmetic on long sessions.

// FilterResult32 holds the output of one accelerated causal pass.
type FilterResult32 struct {
	Posterior         []float32
	DataLogLikelihood float64
	Degenerate        bool
}

// CausalDecode32 is the accelerated forward recursion. transition is the
// flat joint tensor from JointTransition.Tensor32, laid out [i][j][b][b'].
func CausalDecode32(initial []float32, transition []float32, nStates, nBins int, scaledLikelihood []float32, nTime int) (*FilterResult32, error) {
	if err := checkFilterShapes(len(initial), len(scaledLikelihood), nTime, nStates, nBins); err != nil {
		return nil, err
	}
	if len(transition) != nStates*nStates*nBins*nBins {
		return nil, shapeErrorf("transition tensor has %d entries, want %d²×%d²", len(transition), nStates, nBins)
	}

	post := make([]float32, nTime*nStates*nBins)
	pred := make([]float32, nStates*nBins)
	step := nStates * nBins

	logLik := 0.0
	degenerate := false
	for t := 0; t < nTime; t++ {
		if degenerate {
			continue
		}
		if t == 0 {
			copy(pred, initial)
		} else {
			predictJoint32(pred, post[(t-1)*step:t*step], transition, nStates, nBins)
		}

		cur := post[t*step : (t+1)*step]
		lik := scaledLikelihood[t*step : (t+1)*step]
		var norm float32
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
		inv := 1 / norm
		for i := range cur {
			cur[i] *= inv
		}
		logLik += math.Log(float64(norm))
	}

	return &FilterResult32{Posterior: post, DataLogLikelihood: logLik, Degenerate: degenerate}, nil
}

// AcausalDecode32 is the accelerated backward recursion over a causal
// posterior produced by CausalDecode32.
func AcausalDecode32(causal []float32, transition []float32, nStates, nBins int, nTime int) ([]float32, error) {
	step := nStates * nBins
	if len(causal) != nTime*step {
		return nil, shapeErrorf("causal posterior has %d entries, want %d×%d×%d", len(causal), nTime, nStates, nBins)
	}
	if len(transition) != nStates*nStates*nBins*nBins {
		return nil, shapeErrorf("transition tensor has %d entries, want %d²×%d²", len(transition), nStates, nBins)
	}
	if nTime == 0 {
		return []float32{}, nil
	}

	smoothed := make([]float32, len(causal))
	copy(smoothed[(nTime-1)*step:], causal[(nTime-1)*step:])

	pred := make([]float32, step)
	ratio := make([]float32, step)
	back := make([]float32, step)

	for t := nTime - 2; t >= 0; t-- {
		post := causal[t*step : (t+1)*step]
		next := smoothed[(t+1)*step : (t+2)*step]

		predictJoint32(pred, post, transition, nStates, nBins)
		for i := range ratio {
			if pred[i] > 0 {
				ratio[i] = next[i] / pred[i]
			} else {
				ratio[i] = 0
			}
		}

		for i := range back {
			back[i] = 0
		}
		for i := 0; i < nStates; i++ {
			for j := 0; j < nStates; j++ {
				base := (i*nStates + j) * nBins * nBins
				for b := 0; b < nBins; b++ {
					row := transition[base+b*nBins : base+(b+1)*nBins]
					var acc float32
					for b2, w := range row {
						acc += w * ratio[j*nBins+b2]
					}
					back[i*nBins+b] += acc
				}
			}
		}

		cur := smoothed[t*step : (t+1)*step]
		var norm float32
		for k := range cur {
			v := post[k] * back[k]
			cur[k] = v
			norm += v
		}
		if norm > 0 {
			inv := 1 / norm
			for k := range cur {
				cur[k] *= inv
			}
		}
	}

	return smoothed, nil
}

// predictJoint32 is the float32 one-step predictive contraction.
func predictJoint32(pred, prev []float32, transition []float32, nStates, nBins int) {
	for i := range pred {
		pred[i] = 0
	}
	for i := 0; i < nStates; i++ {
		for b := 0; b < nBins; b++ {
			p := prev[i*nBins+b]
			if p == 0 {
				continue
			}
			for j := 0; j < nStates; j++ {
				row := transition[(i*nStates+j)*nBins*nBins+b*nBins:][:nBins]
				dst := pred[j*nBins : (j+1)*nBins]
				for b2, w := range row {
					dst[b2] += p * w
				}
			}
		}
	}
}

func toFloat32(xs []float64) []float32 {
	out := make([]float32, len(xs))
	for i, v := range xs {
		out[i] = float32(v)
	}
	return out
}

func toFloat64(xs []float32) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = float64(v)
	}
	return out
}
