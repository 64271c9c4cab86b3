package decoder

import (
	"fmt"
	"log"
	"math"
)

// RefineOptions controls the EM-style parameter refinement loop.
type RefineOptions struct {
	// Tolerance is the smallest iteration-to-iteration change in data
	// log-likelihood treated as progress.
	Tolerance float64
	// MaxIterations caps the loop; hitting it is reported via the result,
	// not an error.
	MaxIterations int
	// EstimateInitial overwrites the initial conditions with the smoothed
	// posterior at time zero each iteration.
	EstimateInitial bool
	// EstimateDiscrete re-estimates the discrete transition matrix from
	// the smoothed posterior each iteration. Continuous kernels are
	// never re-estimated.
	EstimateDiscrete bool
	// Decode configures the underlying filter/smoother invocations. The
	// acausal pass is forced on; the loop needs smoothed posteriors.
	Decode DecodeOptions
}

// DefaultRefineOptions mirrors the usual refinement setup: both updates
// enabled, tolerance 1e-4, at most 10 iterations.
func DefaultRefineOptions() RefineOptions {
	return RefineOptions{
		Tolerance:        1e-4,
		MaxIterations:    10,
		EstimateInitial:  true,
		EstimateDiscrete: true,
		Decode:           DefaultDecodeOptions(),
	}
}

// RefineResult is the outcome of a refinement run.
type RefineResult struct {
	// Results is the decode from the best iteration seen.
	Results *Results
	// LogLikelihoods is the per-iteration data log-likelihood trace,
	// including the initial decode.
	LogLikelihoods []float64
	// Converged is true when the trace change fell within tolerance.
	Converged bool
	// LikelihoodDecreased flags the warning condition where an iteration
	// lowered the data log-likelihood; the loop terminates and returns
	// the best available state.
	LikelihoodDecreased bool
	// Iterations is the number of refinement iterations performed after
	// the initial decode.
	Iterations int
}

// EstimateParameters runs the iterative refinement loop: decode, update the
// initial conditions and/or discrete transition matrix from the smoothed
// posterior, rebuild the joint transition, and repeat until the data
// log-likelihood converges, decreases, or the iteration cap is reached.
// The likelihood is merged and rescaled once and reused across iterations;
// model updates never change the emission term.
//
// The classifier's mutable state (initial conditions, discrete matrix) is
// owned exclusively by this loop while it runs.
func (c *Classifier) EstimateParameters(rawLog map[ObservationModel][]float64, nTime int, opts RefineOptions) (*RefineResult, error) {
	if opts.MaxIterations <= 0 {
		return nil, fmt.Errorf("refine: max iterations must be positive, got %d", opts.MaxIterations)
	}
	opts.Decode.ComputeAcausal = true

	merged, err := c.mergeLikelihood(rawLog, nTime)
	if err != nil {
		return nil, err
	}
	scaled, err := ScaledLogLikelihood(merged, nTime, c.NStates(), c.maxBins)
	if err != nil {
		return nil, err
	}

	results, err := c.decodeScaled(scaled, nTime, opts.Decode)
	if err != nil {
		return nil, err
	}

	out := &RefineResult{
		Results:        results,
		LogLikelihoods: []float64{results.DataLogLikelihood},
	}
	log.Printf("decoder: refine iteration 0, log likelihood %v", results.DataLogLikelihood)

	best := results
	bestLL := results.DataLogLikelihood

	for out.Iterations < opts.MaxIterations {
		if opts.EstimateInitial {
			// Smoothed posterior at time zero is already a normalized
			// joint distribution of the shared width.
			c.initial = append([]float64(nil), results.AcausalPosterior[:c.NStates()*c.maxBins]...)
		}
		if opts.EstimateDiscrete {
			discrete, err := EstimateDiscreteTransition(results, c.transition.Discrete())
			if err != nil {
				return nil, err
			}
			c.transition, err = c.transition.WithDiscrete(discrete)
			if err != nil {
				return nil, err
			}
		}

		results, err = c.decodeScaled(scaled, nTime, opts.Decode)
		if err != nil {
			return nil, err
		}
		out.Iterations++

		prev := out.LogLikelihoods[len(out.LogLikelihoods)-1]
		cur := results.DataLogLikelihood
		out.LogLikelihoods = append(out.LogLikelihoods, cur)
		log.Printf("decoder: refine iteration %d, log likelihood %v, change %v", out.Iterations, cur, cur-prev)

		if cur > bestLL {
			best = results
			bestLL = cur
		}

		converged, increasing := checkConverged(cur, prev, opts.Tolerance)
		if !increasing {
			log.Printf("decoder: refine warning, log likelihood decreased by %v", prev-cur)
			out.LikelihoodDecreased = true
			break
		}
		if converged {
			out.Converged = true
			break
		}
	}

	if !out.Converged && !out.LikelihoodDecreased {
		log.Printf("decoder: refine warning, max iterations (%d) reached", opts.MaxIterations)
	}

	out.Results = best
	return out, nil
}

// checkConverged compares successive data log-likelihoods. converged means
// the change fell within tolerance; increasing is false when the likelihood
// went down by more than the tolerance.
func checkConverged(current, previous, tolerance float64) (converged, increasing bool) {
	delta := current - previous
	if math.IsInf(current, -1) && math.IsInf(previous, -1) {
		return true, true
	}
	increasing = delta >= -tolerance
	converged = math.Abs(delta) <= tolerance
	return converged, increasing
}
