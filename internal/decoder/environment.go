package decoder

import (
	"fmt"
)

// Environment describes one discretized spatial environment: a regular grid
// of bins in one or two dimensions, with a per-bin interior mask. Bins are
// linearized with the first dimension varying fastest, so for a 2D grid with
// shape (nx, ny) the bin at grid coordinate (ix, iy) has index ix + iy*nx.
type Environment struct {
	Name string

	edges        [][]float64 // per-dimension bin edges
	binCenters   [][]float64 // nBins × nDims
	centersShape []int       // bins per dimension
	interior     []bool      // nBins
}

// NewEnvironment builds an environment from explicit per-dimension bin
// edges. One or two dimensions are supported. All bins start interior;
// use SetTrackInterior to exclude unreachable bins.
func NewEnvironment(name string, edges [][]float64) (*Environment, error) {
	if len(edges) < 1 || len(edges) > 2 {
		return nil, fmt.Errorf("environment %q: need 1 or 2 dimensions, got %d", name, len(edges))
	}
	shape := make([]int, len(edges))
	for d, e := range edges {
		if len(e) < 2 {
			return nil, fmt.Errorf("environment %q: dimension %d needs at least 2 edges", name, d)
		}
		shape[d] = len(e) - 1
	}

	nBins := 1
	for _, n := range shape {
		nBins *= n
	}

	env := &Environment{
		Name:         name,
		edges:        edges,
		centersShape: shape,
		interior:     make([]bool, nBins),
		binCenters:   make([][]float64, nBins),
	}
	for i := range env.interior {
		env.interior[i] = true
	}

	perDim := make([][]float64, len(edges))
	for d, e := range edges {
		perDim[d] = binCenters(e)
	}
	for b := 0; b < nBins; b++ {
		center := make([]float64, len(edges))
		rem := b
		for d := range edges {
			center[d] = perDim[d][rem%shape[d]]
			rem /= shape[d]
		}
		env.binCenters[b] = center
	}

	return env, nil
}

// FitPlaceGrid builds a regular grid covering the extent of the observed
// positions with the given bin size. Position rows are (n_time × n_dims).
func FitPlaceGrid(name string, position [][]float64, binSize float64) (*Environment, error) {
	if len(position) == 0 {
		return nil, fmt.Errorf("environment %q: no position data", name)
	}
	if binSize <= 0 {
		return nil, fmt.Errorf("environment %q: bin size must be positive, got %v", name, binSize)
	}
	nDims := len(position[0])

	edges := make([][]float64, nDims)
	for d := 0; d < nDims; d++ {
		lo, hi := position[0][d], position[0][d]
		for _, p := range position {
			if p[d] < lo {
				lo = p[d]
			}
			if p[d] > hi {
				hi = p[d]
			}
		}
		// Widen the last edge so the maximum observation falls inside a bin.
		for e := lo; e < hi+binSize; e += binSize {
			edges[d] = append(edges[d], e)
		}
		if len(edges[d]) < 2 {
			edges[d] = []float64{lo, lo + binSize}
		}
	}

	return NewEnvironment(name, edges)
}

// NBins returns the total number of spatial bins.
func (e *Environment) NBins() int { return len(e.binCenters) }

// NDims returns the number of spatial dimensions.
func (e *Environment) NDims() int { return len(e.edges) }

// CentersShape returns the number of bins along each dimension.
func (e *Environment) CentersShape() []int { return e.centersShape }

// Edges returns the per-dimension bin edges.
func (e *Environment) Edges() [][]float64 { return e.edges }

// BinCenters returns the center coordinate of every bin (nBins × nDims).
func (e *Environment) BinCenters() [][]float64 { return e.binCenters }

// IsTrackInterior returns the per-bin interior mask. Non-interior bins are
// excluded from all probability mass during filtering and smoothing.
func (e *Environment) IsTrackInterior() []bool { return e.interior }

// SetTrackInterior replaces the interior mask.
func (e *Environment) SetTrackInterior(mask []bool) error {
	if len(mask) != e.NBins() {
		return shapeErrorf("interior mask has %d bins, environment %q has %d", len(mask), e.Name, e.NBins())
	}
	e.interior = append([]bool(nil), mask...)
	return nil
}

// NInterior returns the number of interior bins.
func (e *Environment) NInterior() int {
	n := 0
	for _, in := range e.interior {
		if in {
			n++
		}
	}
	return n
}

// BinIndex returns the linear bin index containing pos, or -1 if pos falls
// outside the grid.
func (e *Environment) BinIndex(pos []float64) int {
	if len(pos) != e.NDims() {
		return -1
	}
	index := 0
	stride := 1
	for d, edge := range e.edges {
		i := searchBin(edge, pos[d])
		if i < 0 {
			return -1
		}
		index += i * stride
		stride *= e.centersShape[d]
	}
	return index
}

// searchBin returns the bin index for x within edges, or -1 if outside.
// The last edge is inclusive so boundary observations are kept.
func searchBin(edges []float64, x float64) int {
	if x < edges[0] || x > edges[len(edges)-1] {
		return -1
	}
	for i := 1; i < len(edges); i++ {
		if x < edges[i] {
			return i - 1
		}
	}
	return len(edges) - 2
}

// binCenters returns the midpoints of consecutive edges.
func binCenters(edges []float64) []float64 {
	centers := make([]float64, len(edges)-1)
	for i := range centers {
		centers[i] = 0.5 * (edges[i] + edges[i+1])
	}
	return centers
}

// ObservationModel links a discrete regime to the environment and encoding
// group its emission likelihood is computed against.
type ObservationModel struct {
	EnvironmentName string
	EncodingGroup   int
}
