// Package decoder implements a switching state-space model that infers, from
// noisy neural-activity observations, the joint probability of a discretized
// spatial position and a small set of discrete movement regimes at every time
// step.
//
// The joint state is the pair (regime, spatial bin). Transitions factor into
// a row-stochastic discrete regime matrix and one continuous bin-to-bin
// movement kernel per ordered regime pair. The engine runs a forward
// (causal) filtering recursion, an optional backward (acausal) smoothing
// recursion, and an EM-style refinement loop that re-estimates the initial
// conditions and the discrete transition matrix from smoothed posteriors.
//
// Two numeric paths are provided: a float64 path built on gonum matrix
// contractions, and an accelerated float32 path using flat arrays. Both
// implement the identical recursion, masking, and normalization semantics.
package decoder
