package vectorindex

import (
	"context"
	"math"
	"testing"
)

func TestSIMDDistanceMatchesScalar(t *testing.T) {
	entries := randomUnitVectors(t, 50, 48, 21)
	for i := 1; i < len(entries); i++ {
		a, b := entries[i-1].Vector, entries[i].Vector
		simd := float64(SIMDDistance(a, b))
		scalar := float64(ScalarDistance(a, b))
		if math.Abs(simd-scalar) > 1e-4 {
			t.Fatalf("pair %d: simd %f vs scalar %f", i, simd, scalar)
		}
	}
}

func TestScalarDistanceSelfMatchNonNegative(t *testing.T) {
	entries := randomUnitVectors(t, 2000, 64, 22)
	for i, e := range entries {
		if d := ScalarDistance(e.Vector, e.Vector); d < 0 {
			t.Fatalf("entry %d self distance = %g, want >= 0", i, d)
		}
		if d := SIMDDistance(e.Vector, e.Vector); d < 0 {
			t.Fatalf("entry %d simd self distance = %g, want >= 0", i, d)
		}
	}
}

func TestScalarDistanceKeepsGrossNegative(t *testing.T) {
	// 非归一化向量的异常距离不归零，留给校验层拒绝
	v := []float32{2, 0, 0, 0}
	if d := ScalarDistance(v, v); d >= 0 {
		t.Errorf("distance = %f, want negative preserved", d)
	}
}

func TestFlatIndexSelfMatchDistanceNonNegative(t *testing.T) {
	entries := randomUnitVectors(t, 500, 64, 23)
	idx, err := NewFlatIndex(entries, 64, ScalarDistance, "scalar")
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	defer idx.Close()

	for i, e := range entries {
		neighbors, err := idx.Search(context.Background(), e.Vector, 1)
		if err != nil {
			t.Fatalf("Search %d: %v", i, err)
		}
		if neighbors[0].Distance < 0 {
			t.Fatalf("entry %d self-match distance = %g, want >= 0", i, neighbors[0].Distance)
		}
	}
}
