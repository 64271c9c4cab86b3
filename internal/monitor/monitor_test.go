package monitor

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/replay.report/internal/decoder"
)

// uniformResults builds a uniform posterior over two regimes and three bins.
func uniformResults(nTime int) *decoder.Results {
	const nStates, nBins = 2, 3
	posterior := make([]float64, nTime*nStates*nBins)
	for i := range posterior {
		posterior[i] = 1.0 / float64(nStates*nBins)
	}
	return &decoder.Results{
		NTime:             nTime,
		NStates:           nStates,
		NBins:             nBins,
		CausalPosterior:   posterior,
		AcausalPosterior:  append([]float64(nil), posterior...),
		DataLogLikelihood: -42,
	}
}

func TestSaveConvergencePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "convergence.png")
	trace := []float64{-120, -95, -90.5, -90.1, -90.05}

	require.NoError(t, SaveConvergencePlot(trace, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, "\x89PNG", string(data[:4]), "output should be a PNG")
}

func TestSaveConvergencePlotSkipsDegenerateEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convergence.png")
	trace := []float64{math.Inf(-1), -80, -75}
	require.NoError(t, SaveConvergencePlot(trace, path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestSaveConvergencePlotRejectsEmptyTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convergence.png")
	require.Error(t, SaveConvergencePlot(nil, path))
	require.Error(t, SaveConvergencePlot([]float64{math.Inf(-1)}, path))
}

func TestWritePosteriorReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report", "posterior.html")
	res := uniformResults(8)

	require.NoError(t, WritePosteriorReport(res, []string{"continuous", "fragmented"}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.True(t, strings.Contains(html, "continuous"))
	assert.True(t, strings.Contains(html, "fragmented"))
	assert.True(t, strings.Contains(html, "Regime Probabilities"))
}

func TestWritePosteriorReportValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posterior.html")
	res := uniformResults(4)

	// Wrong number of state names.
	require.Error(t, WritePosteriorReport(res, []string{"only-one"}, path))

	// No posterior at all.
	res.CausalPosterior = nil
	res.AcausalPosterior = nil
	require.Error(t, WritePosteriorReport(res, []string{"a", "b"}, path))
}

func TestWritePosteriorReportCausalFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posterior.html")
	res := uniformResults(4)
	res.AcausalPosterior = nil

	require.NoError(t, WritePosteriorReport(res, []string{"a", "b"}, path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}
