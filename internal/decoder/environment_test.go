package decoder

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewEnvironment1D(t *testing.T) {
	env, err := NewEnvironment("track", [][]float64{{0, 1, 2, 3, 4, 5}})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	if env.NBins() != 5 {
		t.Fatalf("NBins = %d, want 5", env.NBins())
	}
	if env.NDims() != 1 {
		t.Fatalf("NDims = %d, want 1", env.NDims())
	}

	wantCenters := [][]float64{{0.5}, {1.5}, {2.5}, {3.5}, {4.5}}
	if diff := cmp.Diff(wantCenters, env.BinCenters()); diff != "" {
		t.Errorf("bin centers mismatch (-want +got):\n%s", diff)
	}
	for b, in := range env.IsTrackInterior() {
		if !in {
			t.Errorf("bin %d not interior by default", b)
		}
	}
}

func TestNewEnvironment2DLinearization(t *testing.T) {
	env, err := NewEnvironment("arena", [][]float64{{0, 1, 2, 3}, {0, 1, 2}})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	if env.NBins() != 6 {
		t.Fatalf("NBins = %d, want 6", env.NBins())
	}
	// First dimension varies fastest: bin 4 is (ix=1, iy=1).
	got := env.BinCenters()[4]
	want := []float64{1.5, 1.5}
	if math.Abs(got[0]-want[0]) > 1e-12 || math.Abs(got[1]-want[1]) > 1e-12 {
		t.Errorf("bin 4 center = %v, want %v", got, want)
	}
	if idx := env.BinIndex([]float64{1.5, 1.5}); idx != 4 {
		t.Errorf("BinIndex(1.5, 1.5) = %d, want 4", idx)
	}
}

func TestBinIndexBoundaries(t *testing.T) {
	env, err := NewEnvironment("track", [][]float64{{0, 1, 2}})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	cases := []struct {
		pos  float64
		want int
	}{
		{0, 0},
		{0.99, 0},
		{1, 1},
		{2, 1}, // last edge is inclusive
		{-0.1, -1},
		{2.1, -1},
	}
	for _, tc := range cases {
		if got := env.BinIndex([]float64{tc.pos}); got != tc.want {
			t.Errorf("BinIndex(%v) = %d, want %d", tc.pos, got, tc.want)
		}
	}
}

func TestFitPlaceGridCoversPositions(t *testing.T) {
	position := [][]float64{{0.2}, {3.4}, {7.9}, {5.1}}
	env, err := FitPlaceGrid("track", position, 2.0)
	if err != nil {
		t.Fatalf("FitPlaceGrid: %v", err)
	}
	for _, p := range position {
		if env.BinIndex(p) < 0 {
			t.Errorf("position %v falls outside the fitted grid", p)
		}
	}
}

func TestSetTrackInterior(t *testing.T) {
	env, err := NewEnvironment("track", [][]float64{{0, 1, 2, 3}})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	if err := env.SetTrackInterior([]bool{true, false, true}); err != nil {
		t.Fatalf("SetTrackInterior: %v", err)
	}
	if env.NInterior() != 2 {
		t.Errorf("NInterior = %d, want 2", env.NInterior())
	}
	if err := env.SetTrackInterior([]bool{true}); err == nil {
		t.Error("expected shape error for short mask")
	}
}
