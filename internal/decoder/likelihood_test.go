package decoder

import (
	"errors"
	"math"
	"testing"
)

func TestScaledLikelihood(t *testing.T) {
	// One time step with max 4, one with a NaN hole.
	raw := []float64{
		2, 4, 1,
		math.NaN(), 3, 6,
	}
	got, err := ScaledLikelihood(raw, 2, 1, 3)
	if err != nil {
		t.Fatalf("ScaledLikelihood: %v", err)
	}
	want := []float64{
		0.5, 1, 0.25,
		0, 0.5, 1,
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("scaled[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	// Per-step maximum is exactly 1.
	if got[1] != 1 || got[5] != 1 {
		t.Error("per-step maximum not normalized to 1")
	}
	// Input must not be mutated.
	if raw[0] != 2 {
		t.Error("input slice was mutated")
	}
}

func TestScaledLikelihoodAllZeroStep(t *testing.T) {
	raw := []float64{0, 0, math.NaN(), math.NaN()}
	got, err := ScaledLikelihood(raw, 2, 1, 2)
	if err != nil {
		t.Fatalf("ScaledLikelihood: %v", err)
	}
	for i, v := range got {
		if v != 0 {
			t.Errorf("scaled[%d] = %v, want 0", i, v)
		}
	}
}

func TestScaledLogLikelihood(t *testing.T) {
	logRaw := []float64{
		math.Log(2), math.Log(4), math.Log(1),
		math.Inf(-1), math.Log(3), math.Log(6),
	}
	got, err := ScaledLogLikelihood(logRaw, 2, 1, 3)
	if err != nil {
		t.Fatalf("ScaledLogLikelihood: %v", err)
	}
	want := []float64{
		0.5, 1, 0.25,
		0, 0.5, 1,
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("scaled[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// Per-step rescaling must not change the posterior shape, only the
// log-likelihood offset.
func TestScalingPreservesPosterior(t *testing.T) {
	const nTime, nBins = 12, 5
	jt := uniformKernelTransition(t, nBins)
	initial := uniformInitial(1, nBins)

	raw := pseudoRandomLikelihood(nTime, 1, nBins, 3)
	scaled, err := ScaledLikelihood(raw, nTime, 1, nBins)
	if err != nil {
		t.Fatalf("ScaledLikelihood: %v", err)
	}

	fromRaw, err := CausalDecode(initial, jt, raw, nTime)
	if err != nil {
		t.Fatalf("CausalDecode: %v", err)
	}
	fromScaled, err := CausalDecode(initial, jt, scaled, nTime)
	if err != nil {
		t.Fatalf("CausalDecode: %v", err)
	}
	for i := range fromRaw.Posterior {
		if math.Abs(fromRaw.Posterior[i]-fromScaled.Posterior[i]) > 1e-9 {
			t.Fatalf("posterior[%d] changed under rescaling: %v vs %v",
				i, fromRaw.Posterior[i], fromScaled.Posterior[i])
		}
	}
}

func TestScaledLikelihoodShapeMismatch(t *testing.T) {
	if _, err := ScaledLikelihood([]float64{1, 2}, 1, 1, 3); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("got %v, want ErrShapeMismatch", err)
	}
	if _, err := ScaledLogLikelihood([]float64{1, 2}, 1, 1, 3); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("got %v, want ErrShapeMismatch", err)
	}
}
