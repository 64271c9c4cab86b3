package decoder

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testTrack(t *testing.T, nBins int) *Environment {
	t.Helper()
	edges := make([]float64, nBins+1)
	for i := range edges {
		edges[i] = float64(i)
	}
	env, err := NewEnvironment("track", [][]float64{edges})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	return env
}

func assertRowsStochastic(t *testing.T, k *mat.Dense, interior []bool) {
	t.Helper()
	r, _ := k.Dims()
	for i := 0; i < r; i++ {
		sum := mat.Sum(k.RowView(i))
		if interior[i] {
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("row %d sums to %v, want 1", i, sum)
			}
		} else if sum != 0 {
			t.Errorf("non-interior row %d sums to %v, want 0", i, sum)
		}
	}
}

func TestRandomWalkKernel(t *testing.T) {
	env := testTrack(t, 7)
	k, err := RandomWalk{MovementStd: 1.5}.MakeKernel(env, nil)
	if err != nil {
		t.Fatalf("MakeKernel: %v", err)
	}
	assertRowsStochastic(t, k, env.IsTrackInterior())

	// Staying put is the single most likely move.
	for b := 0; b < 7; b++ {
		for b2 := 0; b2 < 7; b2++ {
			if b2 != b && k.At(b, b2) > k.At(b, b) {
				t.Errorf("kernel[%d][%d] = %v exceeds self transition %v", b, b2, k.At(b, b2), k.At(b, b))
			}
		}
	}
	// Symmetric moves are equally likely.
	if math.Abs(k.At(3, 2)-k.At(3, 4)) > 1e-12 {
		t.Errorf("kernel not symmetric around bin 3: %v vs %v", k.At(3, 2), k.At(3, 4))
	}
}

func TestRandomWalkKernelMasksNonInterior(t *testing.T) {
	env := testTrack(t, 5)
	if err := env.SetTrackInterior([]bool{true, true, false, true, true}); err != nil {
		t.Fatalf("SetTrackInterior: %v", err)
	}
	k, err := RandomWalk{MovementStd: 1}.MakeKernel(env, nil)
	if err != nil {
		t.Fatalf("MakeKernel: %v", err)
	}
	assertRowsStochastic(t, k, env.IsTrackInterior())
	for b := 0; b < 5; b++ {
		if k.At(b, 2) != 0 {
			t.Errorf("kernel[%d][2] = %v, want 0 for a non-interior column", b, k.At(b, 2))
		}
	}
}

func TestDirectedRandomWalkKernels(t *testing.T) {
	env := testTrack(t, 6)
	fwd, err := RandomWalkDirection1{MovementStd: 2}.MakeKernel(env, nil)
	if err != nil {
		t.Fatalf("MakeKernel: %v", err)
	}
	back, err := RandomWalkDirection2{MovementStd: 2}.MakeKernel(env, nil)
	if err != nil {
		t.Fatalf("MakeKernel: %v", err)
	}
	assertRowsStochastic(t, fwd, env.IsTrackInterior())
	assertRowsStochastic(t, back, env.IsTrackInterior())

	for b := 0; b < 6; b++ {
		for b2 := 0; b2 < 6; b2++ {
			if b2 < b && fwd.At(b, b2) != 0 {
				t.Errorf("forward kernel[%d][%d] = %v, want 0 behind the current bin", b, b2, fwd.At(b, b2))
			}
			if b2 > b && back.At(b, b2) != 0 {
				t.Errorf("backward kernel[%d][%d] = %v, want 0 ahead of the current bin", b, b2, back.At(b, b2))
			}
		}
	}
}

func TestUniformKernel(t *testing.T) {
	env := testTrack(t, 4)
	if err := env.SetTrackInterior([]bool{true, true, true, false}); err != nil {
		t.Fatalf("SetTrackInterior: %v", err)
	}
	k, err := Uniform{}.MakeKernel(env, nil)
	if err != nil {
		t.Fatalf("MakeKernel: %v", err)
	}
	assertRowsStochastic(t, k, env.IsTrackInterior())
	for b := 0; b < 3; b++ {
		for b2 := 0; b2 < 3; b2++ {
			if math.Abs(k.At(b, b2)-1.0/3) > 1e-12 {
				t.Errorf("kernel[%d][%d] = %v, want 1/3", b, b2, k.At(b, b2))
			}
		}
	}
}

func TestEmpiricalMovementKernel(t *testing.T) {
	env := testTrack(t, 4)
	// A rightward sweep: 0.5 → 1.5 → 2.5 → 3.5, repeated.
	data := &MovementData{
		Position: [][]float64{{0.5}, {1.5}, {2.5}, {3.5}, {0.5}, {1.5}, {2.5}, {3.5}},
	}
	k, err := EmpiricalMovement{EncodingGroup: -1}.MakeKernel(env, data)
	if err != nil {
		t.Fatalf("MakeKernel: %v", err)
	}
	assertRowsStochastic(t, k, env.IsTrackInterior())
	for b := 0; b < 3; b++ {
		if k.At(b, b+1) <= 0 {
			t.Errorf("kernel[%d][%d] = %v, want observed rightward move to count", b, b+1, k.At(b, b+1))
		}
	}
	// Leftward moves were never observed except the wrap 3.5→0.5.
	if k.At(2, 1) != 0 {
		t.Errorf("kernel[2][1] = %v, want 0", k.At(2, 1))
	}
}

func TestEmpiricalMovementTrainingMask(t *testing.T) {
	env := testTrack(t, 3)
	data := &MovementData{
		Position:   [][]float64{{0.5}, {1.5}, {2.5}, {1.5}},
		IsTraining: []bool{true, true, false, false},
	}
	k, err := EmpiricalMovement{EncodingGroup: -1}.MakeKernel(env, data)
	if err != nil {
		t.Fatalf("MakeKernel: %v", err)
	}
	// Only 0→1 was inside the training window; the masked 1→2 and 2→1
	// moves must not be counted, so row 1 falls back to uniform.
	if k.At(0, 1) != 1 {
		t.Errorf("kernel[0][1] = %v, want 1", k.At(0, 1))
	}
	if math.Abs(k.At(1, 2)-1.0/3) > 1e-12 {
		t.Errorf("kernel[1][2] = %v, want uniform fallback 1/3", k.At(1, 2))
	}
}

func TestEmpiricalMovementRequiresData(t *testing.T) {
	env := testTrack(t, 3)
	if _, err := (EmpiricalMovement{}).MakeKernel(env, nil); err == nil {
		t.Fatal("expected error without position data")
	}
}
