package decoder

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewJointTransitionShapeChecks(t *testing.T) {
	discrete := mat.NewDense(2, 2, []float64{0.9, 0.1, 0.1, 0.9})
	good := func() []*mat.Dense {
		ks := make([]*mat.Dense, 4)
		for i := range ks {
			ks[i] = mat.NewDense(3, 3, nil)
		}
		return ks
	}

	if _, err := NewJointTransition(discrete, good(), 3); err != nil {
		t.Fatalf("valid shapes rejected: %v", err)
	}

	if _, err := NewJointTransition(discrete, good()[:3], 3); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("missing kernel: got %v, want ErrShapeMismatch", err)
	}

	bad := good()
	bad[2] = mat.NewDense(2, 3, nil)
	if _, err := NewJointTransition(discrete, bad, 3); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("wrong kernel shape: got %v, want ErrShapeMismatch", err)
	}

	if _, err := NewJointTransition(mat.NewDense(1, 2, nil), good(), 3); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("non-square discrete: got %v, want ErrShapeMismatch", err)
	}
}

func TestJointTransitionTensor(t *testing.T) {
	const nBins = 3
	jt := randomWalkTwoState(t, nBins, 0.75)
	tensor := jt.Tensor()

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			w := jt.Weight(i, j)
			k := jt.Kernel(i, j)
			for b := 0; b < nBins; b++ {
				for b2 := 0; b2 < nBins; b2++ {
					got := tensor[((i*2+j)*nBins+b)*nBins+b2]
					want := w * k.At(b, b2)
					if math.Abs(got-want) > 1e-15 {
						t.Fatalf("tensor[%d,%d,%d,%d] = %v, want %v", i, j, b, b2, got, want)
					}
				}
			}
		}
	}
}

func TestWithDiscreteSharesKernels(t *testing.T) {
	jt := randomWalkTwoState(t, 4, 0.9)
	updated := mat.NewDense(2, 2, []float64{0.6, 0.4, 0.2, 0.8})

	jt2, err := jt.WithDiscrete(updated)
	if err != nil {
		t.Fatalf("WithDiscrete: %v", err)
	}
	if jt2.Weight(0, 1) != 0.4 {
		t.Errorf("updated weight = %v, want 0.4", jt2.Weight(0, 1))
	}
	if jt.Weight(0, 1) != 0.1 {
		t.Errorf("original weight changed to %v", jt.Weight(0, 1))
	}
	if jt2.Kernel(0, 0) != jt.Kernel(0, 0) {
		t.Error("continuous kernels are not shared")
	}

	if _, err := jt.WithDiscrete(mat.NewDense(3, 3, nil)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("wrong size discrete: got %v, want ErrShapeMismatch", err)
	}
}

func TestCompactDropsMaskedBins(t *testing.T) {
	jt := randomWalkTwoState(t, 5, 0.9)
	sub := jt.compact([]int{0, 1, 3, 4})

	if sub.NBins() != 4 {
		t.Fatalf("compact NBins = %d, want 4", sub.NBins())
	}
	// Element (3,4) of the original kernel lands at (2,3).
	if got, want := sub.Kernel(0, 0).At(2, 3), jt.Kernel(0, 0).At(3, 4); got != want {
		t.Errorf("compact kernel[2][3] = %v, want %v", got, want)
	}
}
