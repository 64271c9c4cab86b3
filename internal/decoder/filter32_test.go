package decoder

import (
	"math"
	"testing"
)

// The accelerated float32 path must agree with the standard float64 path
// within reduced-precision tolerance on a fixed seeded example.
func TestFloat32PathMatchesFloat64(t *testing.T) {
	const nTime, nStates, nBins = 50, 2, 10
	jt := randomWalkTwoState(t, nBins, 0.85)
	lik := pseudoRandomLikelihood(nTime, nStates, nBins, 7)
	initial := uniformInitial(nStates, nBins)

	fr64, err := CausalDecode(initial, jt, lik, nTime)
	if err != nil {
		t.Fatalf("CausalDecode: %v", err)
	}
	sm64, err := AcausalDecode(fr64.Posterior, jt, nTime)
	if err != nil {
		t.Fatalf("AcausalDecode: %v", err)
	}

	fr32, err := CausalDecode32(toFloat32(initial), jt.Tensor32(), nStates, nBins, toFloat32(lik), nTime)
	if err != nil {
		t.Fatalf("CausalDecode32: %v", err)
	}
	sm32, err := AcausalDecode32(fr32.Posterior, jt.Tensor32(), nStates, nBins, nTime)
	if err != nil {
		t.Fatalf("AcausalDecode32: %v", err)
	}

	const tol = 1e-3
	for i := range fr64.Posterior {
		if diff := math.Abs(fr64.Posterior[i] - float64(fr32.Posterior[i])); diff > tol {
			t.Fatalf("causal posterior[%d]: float64 %v vs float32 %v (diff %v)",
				i, fr64.Posterior[i], fr32.Posterior[i], diff)
		}
	}
	for i := range sm64 {
		if diff := math.Abs(sm64[i] - float64(sm32[i])); diff > tol {
			t.Fatalf("smoothed posterior[%d]: float64 %v vs float32 %v (diff %v)",
				i, sm64[i], sm32[i], diff)
		}
	}

	// The accumulated log-likelihood is a sum over nTime log terms; allow
	// the same per-entry tolerance scaled by the series length.
	if diff := math.Abs(fr64.DataLogLikelihood - fr32.DataLogLikelihood); diff > tol*float64(nTime) {
		t.Errorf("data log likelihood: float64 %v vs float32 %v", fr64.DataLogLikelihood, fr32.DataLogLikelihood)
	}
}

func TestFloat32PathDegenerate(t *testing.T) {
	const nTime, nBins = 5, 3
	jt := uniformKernelTransition(t, nBins)
	lik := onesLikelihood(nTime, 1, nBins)
	for b := 0; b < nBins; b++ {
		lik[2*nBins+b] = 0
	}

	fr, err := CausalDecode32(toFloat32(uniformInitial(1, nBins)), jt.Tensor32(), 1, nBins, toFloat32(lik), nTime)
	if err != nil {
		t.Fatalf("CausalDecode32: %v", err)
	}
	if !fr.Degenerate {
		t.Fatal("expected degenerate result")
	}
	if !math.IsInf(fr.DataLogLikelihood, -1) {
		t.Errorf("data log likelihood = %v, want -Inf", fr.DataLogLikelihood)
	}
	for i := 2 * nBins; i < len(fr.Posterior); i++ {
		if fr.Posterior[i] != 0 {
			t.Errorf("posterior[%d] = %v, want 0", i, fr.Posterior[i])
		}
	}
}

func TestFloat32PathShapeMismatch(t *testing.T) {
	jt := uniformKernelTransition(t, 3)
	_, err := CausalDecode32([]float32{1}, jt.Tensor32(), 1, 3, make([]float32, 6), 2)
	if err == nil {
		t.Fatal("expected shape mismatch error")
	}
	_, err = CausalDecode32(make([]float32, 3), make([]float32, 4), 1, 3, make([]float32, 6), 2)
	if err == nil {
		t.Fatal("expected transition tensor shape error")
	}
}
