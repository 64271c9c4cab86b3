package decoder

import "fmt"

// InitialConditions builds the per-regime prior over spatial bins at time
// zero. Each returned slice has the bin count of that regime's environment;
// the classifier pads them to a shared width and normalizes the whole joint
// distribution to sum to 1.
type InitialConditions interface {
	Make(environments []*Environment, stateEnvNames []string) ([][]float64, error)
}

// UniformInitialConditions spreads each regime's prior uniformly over the
// interior bins of that regime's environment.
type UniformInitialConditions struct{}

// Make implements InitialConditions.
func (UniformInitialConditions) Make(environments []*Environment, stateEnvNames []string) ([][]float64, error) {
	out := make([][]float64, len(stateEnvNames))
	for s, name := range stateEnvNames {
		env, err := environmentByName(environments, name)
		if err != nil {
			return nil, err
		}
		out[s] = uniformOverInterior(env)
	}
	return out, nil
}

// UniformOneEnvironmentInitialConditions places all prior mass on the
// regimes tied to one designated environment, uniform over its interior
// bins, with zero mass elsewhere.
type UniformOneEnvironmentInitialConditions struct {
	EnvironmentName string
}

// Make implements InitialConditions.
func (u UniformOneEnvironmentInitialConditions) Make(environments []*Environment, stateEnvNames []string) ([][]float64, error) {
	if _, err := environmentByName(environments, u.EnvironmentName); err != nil {
		return nil, err
	}
	out := make([][]float64, len(stateEnvNames))
	for s, name := range stateEnvNames {
		env, err := environmentByName(environments, name)
		if err != nil {
			return nil, err
		}
		if name == u.EnvironmentName {
			out[s] = uniformOverInterior(env)
		} else {
			out[s] = make([]float64, env.NBins())
		}
	}
	return out, nil
}

func uniformOverInterior(env *Environment) []float64 {
	prior := make([]float64, env.NBins())
	n := env.NInterior()
	if n == 0 {
		return prior
	}
	v := 1 / float64(n)
	for b, in := range env.IsTrackInterior() {
		if in {
			prior[b] = v
		}
	}
	return prior
}

func environmentByName(environments []*Environment, name string) (*Environment, error) {
	for _, env := range environments {
		if env.Name == name {
			return env, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, name)
}
