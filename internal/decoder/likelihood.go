package decoder

import "math"

// ScaledLikelihood normalizes a raw nonnegative likelihood array shaped
// (nTime × nStates × nBins) so that, within every time step, values are
// divided by that step's maximum across the joint state. Relative ratios
// within a step are preserved; the dropped per-step constants are recovered
// in the filter's log-likelihood accumulation. NaN entries (bins with no
// data) become 0.
//
// Without this rescaling the forward/backward recursions multiply hundreds
// to thousands of per-step factors and underflow to zero in floating point.
func ScaledLikelihood(raw []float64, nTime, nStates, nBins int) ([]float64, error) {
	if len(raw) != nTime*nStates*nBins {
		return nil, shapeErrorf("likelihood has %d entries, want %d×%d×%d", len(raw), nTime, nStates, nBins)
	}
	out := make([]float64, len(raw))
	step := nStates * nBins
	for t := 0; t < nTime; t++ {
		slice := raw[t*step : (t+1)*step]
		max := math.Inf(-1)
		for _, v := range slice {
			if !math.IsNaN(v) && v > max {
				max = v
			}
		}
		dst := out[t*step : (t+1)*step]
		if max <= 0 || math.IsInf(max, -1) {
			continue // leave the step at zero
		}
		for i, v := range slice {
			if math.IsNaN(v) {
				continue
			}
			dst[i] = v / max
		}
	}
	return out, nil
}

// ScaledLogLikelihood is ScaledLikelihood for likelihoods supplied in log
// space: each step's values become exp(log - step max), which is the same
// per-step normalization without ever forming the underflowing raw product.
func ScaledLogLikelihood(logLik []float64, nTime, nStates, nBins int) ([]float64, error) {
	if len(logLik) != nTime*nStates*nBins {
		return nil, shapeErrorf("log likelihood has %d entries, want %d×%d×%d", len(logLik), nTime, nStates, nBins)
	}
	out := make([]float64, len(logLik))
	step := nStates * nBins
	for t := 0; t < nTime; t++ {
		slice := logLik[t*step : (t+1)*step]
		max := math.Inf(-1)
		for _, v := range slice {
			if !math.IsNaN(v) && v > max {
				max = v
			}
		}
		dst := out[t*step : (t+1)*step]
		if math.IsInf(max, -1) {
			continue
		}
		for i, v := range slice {
			if math.IsNaN(v) || math.IsInf(v, -1) {
				continue
			}
			dst[i] = math.Exp(v - max)
		}
	}
	return out, nil
}
