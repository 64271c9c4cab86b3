package decoder

// Results is the minimal structured output of one decode: posteriors over
// the joint (regime, bin) state per time step, the rescaled likelihood that
// produced them, and the total data log-likelihood. Arrays are flat with
// layout (NTime × NStates × NBins); Index converts coordinates.
type Results struct {
	NTime   int
	NStates int
	NBins   int

	// CausalPosterior depends only on observations up to each time step.
	CausalPosterior []float64
	// AcausalPosterior depends on the full observation sequence. Nil when
	// smoothing was not requested.
	AcausalPosterior []float64
	// ScaledLikelihood is the per-step rescaled emission likelihood the
	// posteriors were computed from.
	ScaledLikelihood []float64

	// DataLogLikelihood is the log probability of the observed sequence
	// under the model; -Inf when Degenerate.
	DataLogLikelihood float64
	// Degenerate reports that all joint-state probability collapsed to
	// zero at some time step. Posteriors from that step on are zero.
	Degenerate bool
}

// Index returns the flat offset of (t, state, bin).
func (r *Results) Index(t, state, bin int) int {
	return (t*r.NStates+state)*r.NBins + bin
}

// StateProbabilities marginalizes a posterior over spatial bins, returning
// the per-step regime probabilities as a flat (NTime × NStates) slice.
func (r *Results) StateProbabilities(acausal bool) []float64 {
	src := r.CausalPosterior
	if acausal && r.AcausalPosterior != nil {
		src = r.AcausalPosterior
	}
	out := make([]float64, r.NTime*r.NStates)
	for t := 0; t < r.NTime; t++ {
		for s := 0; s < r.NStates; s++ {
			sum := 0.0
			base := (t*r.NStates + s) * r.NBins
			for b := 0; b < r.NBins; b++ {
				sum += src[base+b]
			}
			out[t*r.NStates+s] = sum
		}
	}
	return out
}

// MostProbableBins marginalizes a posterior over regimes and returns, for
// each time step, the spatial bin with the highest posterior mass.
func (r *Results) MostProbableBins(acausal bool) []int {
	src := r.CausalPosterior
	if acausal && r.AcausalPosterior != nil {
		src = r.AcausalPosterior
	}
	out := make([]int, r.NTime)
	marginal := make([]float64, r.NBins)
	for t := 0; t < r.NTime; t++ {
		for b := range marginal {
			marginal[b] = 0
		}
		for s := 0; s < r.NStates; s++ {
			base := (t*r.NStates + s) * r.NBins
			for b := 0; b < r.NBins; b++ {
				marginal[b] += src[base+b]
			}
		}
		best := 0
		for b, v := range marginal {
			if v > marginal[best] {
				best = b
			}
		}
		out[t] = best
	}
	return out
}
