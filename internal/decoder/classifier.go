package decoder

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MaskPolicy selects how non-interior bins are handled during decoding.
type MaskPolicy int

const (
	// MaskAuto applies MaskInterior with a single environment and
	// MaskNone with several, matching the padded shared-width joint
	// state that multi-environment mode requires.
	MaskAuto MaskPolicy = iota
	// MaskInterior restricts the recursion to interior bins: transition
	// and likelihood entries for masked bins are excluded from the
	// contraction and from normalization, not merely zeroed.
	MaskInterior
	// MaskNone runs over the full padded joint state.
	MaskNone
)

// DecodeOptions controls a single filter/smoother invocation.
type DecodeOptions struct {
	// ComputeAcausal also runs the backward smoothing pass.
	ComputeAcausal bool
	// UseFloat32 selects the accelerated float32 numeric path.
	UseFloat32 bool
	// Mask selects the non-interior bin policy.
	Mask MaskPolicy
}

// DefaultDecodeOptions returns the options used by most callers: both
// passes on the standard float64 path with automatic masking.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{ComputeAcausal: true}
}

// Classifier assembles and runs the switching state-space model. Configure
// the exported fields, call Fit once, then Decode any number of times.
type Classifier struct {
	// Environments are the fitted spatial discretizations.
	Environments []*Environment
	// ObservationModels tags each regime with its environment and
	// encoding group. Its length sets the number of regimes.
	ObservationModels []ObservationModel
	// ContinuousTypes gives the movement model for every ordered regime
	// pair; ContinuousTypes[i][j] builds the kernel for (i, j) on the
	// destination regime j's environment.
	ContinuousTypes [][]ContinuousTransition
	// DiscreteType builds the initial regime-transition matrix.
	DiscreteType DiscreteTransition
	// InitialType builds the joint prior at time zero.
	InitialType InitialConditions

	maxBins    int
	initial    []float64 // nStates × maxBins, sums to 1
	transition *JointTransition
	fitted     bool
}

// NewClassifier wires a classifier with the common defaults: every regime
// observes the first environment with encoding group 0, a sticky
// DiagonalDiscrete(0.98) regime matrix, and uniform initial conditions.
func NewClassifier(environments []*Environment, continuousTypes [][]ContinuousTransition) *Classifier {
	nStates := len(continuousTypes)
	obs := make([]ObservationModel, nStates)
	for s := range obs {
		obs[s] = ObservationModel{EnvironmentName: environments[0].Name}
	}
	return &Classifier{
		Environments:      environments,
		ObservationModels: obs,
		ContinuousTypes:   continuousTypes,
		DiscreteType:      DiagonalDiscrete{DiagonalValue: 0.98},
		InitialType:       UniformInitialConditions{},
	}
}

// NStates returns the number of discrete regimes.
func (c *Classifier) NStates() int { return len(c.ObservationModels) }

// MaxBins returns the shared joint-state bin width (the largest bin count
// across environments; narrower environments are zero-padded to it).
func (c *Classifier) MaxBins() int { return c.maxBins }

// InitialConditionsVector returns a copy of the fitted joint prior.
func (c *Classifier) InitialConditionsVector() []float64 {
	return append([]float64(nil), c.initial...)
}

// Transition returns the fitted joint transition model.
func (c *Classifier) Transition() *JointTransition { return c.transition }

// Fit builds the initial conditions, the continuous kernels for every
// regime pair, the discrete transition matrix, and the joint transition
// model. data may be nil when no EmpiricalMovement kernel is configured.
func (c *Classifier) Fit(data *MovementData) error {
	if len(c.Environments) == 0 {
		return fmt.Errorf("classifier: no environments")
	}
	nStates := len(c.ObservationModels)
	if nStates == 0 {
		return fmt.Errorf("classifier: no observation models")
	}
	if len(c.ContinuousTypes) != nStates {
		return shapeErrorf("got %d continuous transition rows, want %d", len(c.ContinuousTypes), nStates)
	}
	for i, row := range c.ContinuousTypes {
		if len(row) != nStates {
			return shapeErrorf("continuous transition row %d has %d entries, want %d", i, len(row), nStates)
		}
	}

	stateEnvNames := make([]string, nStates)
	for s, obs := range c.ObservationModels {
		env, err := environmentByName(c.Environments, obs.EnvironmentName)
		if err != nil {
			return err
		}
		stateEnvNames[s] = env.Name
	}

	c.maxBins = 0
	for _, env := range c.Environments {
		if env.NBins() > c.maxBins {
			c.maxBins = env.NBins()
		}
	}

	log.Printf("decoder: fitting initial conditions")
	if err := c.fitInitialConditions(stateEnvNames); err != nil {
		return err
	}

	log.Printf("decoder: fitting continuous state transitions")
	kernels, err := c.fitContinuousTransitions(stateEnvNames, data)
	if err != nil {
		return err
	}

	log.Printf("decoder: fitting discrete state transition")
	discrete, err := c.DiscreteType.MakeMatrix(nStates)
	if err != nil {
		return err
	}

	c.transition, err = NewJointTransition(discrete, kernels, c.maxBins)
	if err != nil {
		return err
	}
	c.fitted = true
	return nil
}

func (c *Classifier) fitInitialConditions(stateEnvNames []string) error {
	perState, err := c.InitialType.Make(c.Environments, stateEnvNames)
	if err != nil {
		return err
	}

	nStates := len(stateEnvNames)
	c.initial = make([]float64, nStates*c.maxBins)
	total := 0.0
	for s, prior := range perState {
		env, _ := environmentByName(c.Environments, stateEnvNames[s])
		if len(prior) != env.NBins() {
			return shapeErrorf("initial conditions for state %d have %d bins, environment %q has %d",
				s, len(prior), env.Name, env.NBins())
		}
		copy(c.initial[s*c.maxBins:], prior)
		for _, v := range prior {
			total += v
		}
	}
	if total <= 0 {
		return fmt.Errorf("classifier: initial conditions carry no probability mass")
	}
	for i := range c.initial {
		c.initial[i] /= total
	}
	return nil
}

func (c *Classifier) fitContinuousTransitions(stateEnvNames []string, data *MovementData) ([]*mat.Dense, error) {
	nStates := len(stateEnvNames)
	kernels := make([]*mat.Dense, nStates*nStates)
	for i := 0; i < nStates; i++ {
		for j := 0; j < nStates; j++ {
			env, _ := environmentByName(c.Environments, stateEnvNames[j])
			k, err := c.ContinuousTypes[i][j].MakeKernel(env, data)
			if err != nil {
				return nil, fmt.Errorf("kernel for regime pair (%d,%d): %w", i, j, err)
			}
			r, cc := k.Dims()
			if r != env.NBins() || cc != env.NBins() {
				return nil, shapeErrorf("kernel for regime pair (%d,%d) is %d×%d, environment %q has %d bins",
					i, j, r, cc, env.Name, env.NBins())
			}
			kernels[i*nStates+j] = padKernel(k, c.maxBins)
		}
	}
	return kernels, nil
}

// padKernel zero-pads a kernel into the shared maxBins × maxBins width.
func padKernel(k *mat.Dense, maxBins int) *mat.Dense {
	r, c := k.Dims()
	if r == maxBins && c == maxBins {
		return k
	}
	out := mat.NewDense(maxBins, maxBins, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, k.At(i, j))
		}
	}
	return out
}

// Decode merges raw per-(environment, encoding group) likelihood blocks
// into the joint state, rescales them per time step, and runs the filter
// and optional smoother. Each block is flat (nTime × environment bins).
func (c *Classifier) Decode(raw map[ObservationModel][]float64, nTime int, opts DecodeOptions) (*Results, error) {
	merged, err := c.mergeLikelihood(raw, nTime)
	if err != nil {
		return nil, err
	}
	scaled, err := ScaledLikelihood(merged, nTime, c.NStates(), c.maxBins)
	if err != nil {
		return nil, err
	}
	return c.decodeScaled(scaled, nTime, opts)
}

// DecodeLog is Decode for likelihood blocks supplied in log space, which is
// how emission models avoid underflow across many simultaneous sources.
func (c *Classifier) DecodeLog(rawLog map[ObservationModel][]float64, nTime int, opts DecodeOptions) (*Results, error) {
	merged, err := c.mergeLikelihood(rawLog, nTime)
	if err != nil {
		return nil, err
	}
	scaled, err := ScaledLogLikelihood(merged, nTime, c.NStates(), c.maxBins)
	if err != nil {
		return nil, err
	}
	return c.decodeScaled(scaled, nTime, opts)
}

// mergeLikelihood pads each state's likelihood block into the shared-width
// (nTime × nStates × maxBins) array. Bins beyond a state's environment are
// NaN so the scaler zeroes them.
func (c *Classifier) mergeLikelihood(raw map[ObservationModel][]float64, nTime int) ([]float64, error) {
	if !c.fitted {
		return nil, fmt.Errorf("classifier: Fit must be called before Decode")
	}
	nStates := c.NStates()
	merged := make([]float64, nTime*nStates*c.maxBins)
	for i := range merged {
		merged[i] = math.NaN()
	}

	for s, obs := range c.ObservationModels {
		block, ok := raw[obs]
		if !ok {
			return nil, fmt.Errorf("classifier: no likelihood for environment %q encoding group %d",
				obs.EnvironmentName, obs.EncodingGroup)
		}
		env, err := environmentByName(c.Environments, obs.EnvironmentName)
		if err != nil {
			return nil, err
		}
		nBins := env.NBins()
		if len(block) != nTime*nBins {
			return nil, shapeErrorf("likelihood block for environment %q has %d entries, want %d×%d",
				obs.EnvironmentName, len(block), nTime, nBins)
		}
		for t := 0; t < nTime; t++ {
			copy(merged[(t*nStates+s)*c.maxBins:(t*nStates+s)*c.maxBins+nBins], block[t*nBins:(t+1)*nBins])
		}
	}
	return merged, nil
}

// decodeScaled runs the engine over an already-scaled likelihood array.
func (c *Classifier) decodeScaled(scaled []float64, nTime int, opts DecodeOptions) (*Results, error) {
	if !c.fitted {
		return nil, fmt.Errorf("classifier: Fit must be called before Decode")
	}

	maskInterior := opts.Mask == MaskInterior || (opts.Mask == MaskAuto && len(c.Environments) == 1)
	if maskInterior && len(c.Environments) > 1 {
		return nil, fmt.Errorf("classifier: interior masking requires a single environment")
	}

	var keep []int
	initial := c.initial
	transition := c.transition
	lik := scaled
	nBins := c.maxBins

	if maskInterior {
		interior := c.Environments[0].IsTrackInterior()
		keep = make([]int, 0, len(interior))
		for b, in := range interior {
			if in {
				keep = append(keep, b)
			}
		}
		if len(keep) < c.maxBins {
			initial = gatherBins(c.initial, keep, c.NStates(), c.maxBins, 1)
			transition = c.transition.compact(keep)
			lik = gatherBins(scaled, keep, c.NStates(), c.maxBins, nTime)
			nBins = len(keep)
		} else {
			keep = nil // mask is all-interior, nothing to compact
		}
	}

	res := &Results{
		NTime:            nTime,
		NStates:          c.NStates(),
		NBins:            c.maxBins,
		ScaledLikelihood: scaled,
	}

	log.Printf("decoder: estimating causal posterior (%d steps, %d states, %d bins)", nTime, c.NStates(), nBins)
	if opts.UseFloat32 {
		fr, err := CausalDecode32(toFloat32(initial), transition.Tensor32(), c.NStates(), nBins, toFloat32(lik), nTime)
		if err != nil {
			return nil, err
		}
		res.DataLogLikelihood = fr.DataLogLikelihood
		res.Degenerate = fr.Degenerate
		res.CausalPosterior = scatterBins(toFloat64(fr.Posterior), keep, c.NStates(), c.maxBins, nTime)
		if opts.ComputeAcausal {
			log.Printf("decoder: estimating acausal posterior")
			sm, err := AcausalDecode32(fr.Posterior, transition.Tensor32(), c.NStates(), nBins, nTime)
			if err != nil {
				return nil, err
			}
			res.AcausalPosterior = scatterBins(toFloat64(sm), keep, c.NStates(), c.maxBins, nTime)
		}
		return res, nil
	}

	fr, err := CausalDecode(initial, transition, lik, nTime)
	if err != nil {
		return nil, err
	}
	res.DataLogLikelihood = fr.DataLogLikelihood
	res.Degenerate = fr.Degenerate
	res.CausalPosterior = scatterBins(fr.Posterior, keep, c.NStates(), c.maxBins, nTime)
	if opts.ComputeAcausal {
		log.Printf("decoder: estimating acausal posterior")
		sm, err := AcausalDecode(fr.Posterior, transition, nTime)
		if err != nil {
			return nil, err
		}
		res.AcausalPosterior = scatterBins(sm, keep, c.NStates(), c.maxBins, nTime)
	}
	return res, nil
}

// gatherBins extracts the kept bins from a flat (nTime × nStates × nBins)
// array, producing (nTime × nStates × len(keep)).
func gatherBins(src []float64, keep []int, nStates, nBins, nTime int) []float64 {
	out := make([]float64, nTime*nStates*len(keep))
	for t := 0; t < nTime; t++ {
		for s := 0; s < nStates; s++ {
			srcBase := (t*nStates + s) * nBins
			dstBase := (t*nStates + s) * len(keep)
			for k, b := range keep {
				out[dstBase+k] = src[srcBase+b]
			}
		}
	}
	return out
}

// scatterBins is the inverse of gatherBins: kept bins are written back into
// the full-width array, masked bins stay exactly zero. A nil keep means the
// array is already full width.
func scatterBins(src []float64, keep []int, nStates, nBins, nTime int) []float64 {
	if keep == nil {
		return src
	}
	out := make([]float64, nTime*nStates*nBins)
	for t := 0; t < nTime; t++ {
		for s := 0; s < nStates; s++ {
			srcBase := (t*nStates + s) * len(keep)
			dstBase := (t*nStates + s) * nBins
			for k, b := range keep {
				out[dstBase+b] = src[srcBase+k]
			}
		}
	}
	return out
}
