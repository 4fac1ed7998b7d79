package vector

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: %v, want 1", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: %v, want 0", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors: %v, want -1", got)
	}
	// Scale invariance.
	if got := Cosine([]float32{2, 0}, []float32{5, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("scaled vectors: %v, want 1", got)
	}
}

func TestCosine_ZeroNorm(t *testing.T) {
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero-norm: %v, want 0", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 0}); got != 0 {
		t.Errorf("zero-norm catalog side: %v, want 0", got)
	}
	if got := Cosine(nil, nil); got != 0 {
		t.Errorf("empty: %v, want 0", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 0}); got != 0 {
		t.Errorf("length mismatch: %v, want 0", got)
	}
}

func TestScore(t *testing.T) {
	if got := Score([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("self score: %v, want 1", got)
	}
	if got := Score([]float32{1, 0}, []float32{-1, 0}); math.Abs(got) > 1e-9 {
		t.Errorf("opposite score: %v, want 0", got)
	}
	if got := Score([]float32{1, 0}, []float32{0, 1}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("orthogonal score: %v, want 0.5", got)
	}
	// Zero-norm pairs score the defined minimum, not the midpoint.
	if got := Score([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero-norm score: %v, want 0", got)
	}
}

func TestL2Norm(t *testing.T) {
	if got := L2Norm([]float32{3, 4}); math.Abs(got-5) > 1e-9 {
		t.Errorf("got %v, want 5", got)
	}
	if got := L2Norm(nil); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}
