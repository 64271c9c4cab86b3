// Package emission estimates sorted-spikes place fields and turns binned
// spike counts into spatial log-likelihoods for the decoder.
//
// Place fields are Gaussian-smoothed occupancy-normalized firing rates on
// the environment's bin grid. Decoding assumes Poisson spiking: the
// log-likelihood of the counts observed in one time bin, evaluated at every
// spatial bin, is summed over neurons. Results are returned in log space so
// many simultaneously recorded neurons do not underflow; feed them to
// DecodeLog or EstimateParameters as-is.
package emission

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/replay.report/internal/decoder"
)

// Config holds the emission model parameters.
type Config struct {
	// PositionStd is the Gaussian smoothing bandwidth for place-field
	// estimation, in position units.
	PositionStd float64
	// RateOffset is a small firing-rate floor in Hz that keeps the Poisson
	// rate positive in bins a neuron never fired in.
	RateOffset float64
	// TimeBinSecs is the duration of one time bin.
	TimeBinSecs float64
}

// DefaultConfig returns the usual sorted-spikes setup: 6-unit smoothing,
// a 1e-5 Hz rate floor, 20 ms time bins.
func DefaultConfig() Config {
	return Config{
		PositionStd: 6.0,
		RateOffset:  1e-5,
		TimeBinSecs: 0.020,
	}
}

// PlaceFields is a fitted emission model: one smoothed firing-rate map per
// neuron over the environment's bins.
type PlaceFields struct {
	env   *decoder.Environment
	rates [][]float64 // nNeurons × nBins, Hz
	cfg   Config
}

// Fit estimates place fields from training data. position is (n_time ×
// n_dims) and spikes is (n_time × n_neurons) binned counts aligned with the
// position samples.
func Fit(env *decoder.Environment, position [][]float64, spikes [][]float64, cfg Config) (*PlaceFields, error) {
	if cfg.PositionStd <= 0 {
		return nil, fmt.Errorf("emission: position std must be positive, got %v", cfg.PositionStd)
	}
	if cfg.TimeBinSecs <= 0 {
		return nil, fmt.Errorf("emission: time bin must be positive, got %v", cfg.TimeBinSecs)
	}
	if len(position) == 0 {
		return nil, fmt.Errorf("emission: no training positions")
	}
	if len(spikes) != len(position) {
		return nil, fmt.Errorf("emission: %d spike rows for %d position rows", len(spikes), len(position))
	}
	nNeurons := len(spikes[0])
	if nNeurons == 0 {
		return nil, fmt.Errorf("emission: no neurons")
	}
	nDims := env.NDims()
	centers := env.BinCenters()
	nBins := env.NBins()

	kernel := distuv.Normal{Mu: 0, Sigma: cfg.PositionStd}

	// Per-sample smoothing weights onto the bin grid, shared across neurons.
	occupancy := make([]float64, nBins)
	counts := make([][]float64, nNeurons)
	for n := range counts {
		counts[n] = make([]float64, nBins)
	}
	weights := make([]float64, nBins)
	for t, pos := range position {
		if len(pos) != nDims {
			return nil, fmt.Errorf("emission: position row %d has %d dims, environment has %d", t, len(pos), nDims)
		}
		if len(spikes[t]) != nNeurons {
			return nil, fmt.Errorf("emission: spike row %d has %d neurons, want %d", t, len(spikes[t]), nNeurons)
		}
		for b := 0; b < nBins; b++ {
			w := 1.0
			for d := 0; d < nDims; d++ {
				w *= kernel.Prob(pos[d] - centers[b][d])
			}
			weights[b] = w
			occupancy[b] += w
		}
		for n, k := range spikes[t] {
			if k == 0 {
				continue
			}
			for b := 0; b < nBins; b++ {
				counts[n][b] += k * weights[b]
			}
		}
	}

	rates := make([][]float64, nNeurons)
	for n := range rates {
		rates[n] = make([]float64, nBins)
		for b := 0; b < nBins; b++ {
			if occupancy[b] > 0 {
				rates[n][b] = counts[n][b] / (occupancy[b] * cfg.TimeBinSecs)
			}
			rates[n][b] += cfg.RateOffset
		}
	}
	return &PlaceFields{env: env, rates: rates, cfg: cfg}, nil
}

// NNeurons returns the number of fitted neurons.
func (pf *PlaceFields) NNeurons() int { return len(pf.rates) }

// Rates returns the fitted firing-rate map for one neuron, in Hz.
func (pf *PlaceFields) Rates(neuron int) []float64 {
	return append([]float64(nil), pf.rates[neuron]...)
}

// Environment returns the environment the fields were fitted on.
func (pf *PlaceFields) Environment() *decoder.Environment { return pf.env }

// LogLikelihood evaluates the Poisson log-likelihood of binned spike counts
// (n_time × n_neurons) at every spatial bin, summed over neurons. The result
// is flat (n_time × n_bins), log space, ready for DecodeLog.
func (pf *PlaceFields) LogLikelihood(spikes [][]float64) ([]float64, error) {
	nNeurons := pf.NNeurons()
	nBins := pf.env.NBins()
	nTime := len(spikes)

	// Per-neuron terms that do not depend on the observed count.
	logRate := make([][]float64, nNeurons)
	expected := make([][]float64, nNeurons)
	for n := 0; n < nNeurons; n++ {
		logRate[n] = make([]float64, nBins)
		expected[n] = make([]float64, nBins)
		for b := 0; b < nBins; b++ {
			lambda := pf.rates[n][b] * pf.cfg.TimeBinSecs
			expected[n][b] = lambda
			logRate[n][b] = math.Log(lambda)
		}
	}

	out := make([]float64, nTime*nBins)
	for t, row := range spikes {
		if len(row) != nNeurons {
			return nil, fmt.Errorf("emission: spike row %d has %d neurons, model has %d", t, len(row), nNeurons)
		}
		for b := 0; b < nBins; b++ {
			ll := 0.0
			for n, k := range row {
				ll -= expected[n][b]
				if k > 0 {
					lg, _ := math.Lgamma(k + 1)
					ll += k*logRate[n][b] - lg
				}
			}
			out[t*nBins+b] = ll
		}
	}
	return out, nil
}
