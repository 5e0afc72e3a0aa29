package vectorindex

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"analog-forecast-api/internal/domain/entity"
)

// randomUnitVectors 生成确定性的单位化向量集合
func randomUnitVectors(t *testing.T, n, dim int, seed int64) []entity.IndexEntry {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	entries := make([]entity.IndexEntry, n)
	for i := range entries {
		v := make([]float32, dim)
		var norm float64
		for j := range v {
			v[j] = float32(rng.NormFloat64())
			norm += float64(v[j]) * float64(v[j])
		}
		norm = math.Sqrt(norm)
		for j := range v {
			v[j] = float32(float64(v[j]) / norm)
		}
		entries[i] = entity.IndexEntry{
			Vector:     v,
			Identifier: identifierFor(i),
		}
	}
	return entries
}

func identifierFor(i int) string {
	return "p" + string(rune('a'+i/26%26)) + string(rune('a'+i%26)) + "_" + string(rune('0'+i%10))
}

func TestFlatIndexSelfMatch(t *testing.T) {
	entries := randomUnitVectors(t, 100, 32, 1)
	idx, err := NewFlatIndex(entries, 32, ScalarDistance, "scalar")
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	defer idx.Close()

	query := entries[42].Vector
	neighbors, err := idx.Search(context.Background(), query, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 10 {
		t.Fatalf("expected 10 neighbors, got %d", len(neighbors))
	}
	if neighbors[0].Identifier != entries[42].Identifier {
		t.Errorf("rank 0 = %s, want %s", neighbors[0].Identifier, entries[42].Identifier)
	}
	if neighbors[0].Similarity() < 0.999 {
		t.Errorf("self-match similarity %f, want >= 0.999", neighbors[0].Similarity())
	}
}

func TestFlatIndexOrdering(t *testing.T) {
	entries := randomUnitVectors(t, 200, 16, 2)
	idx, err := NewFlatIndex(entries, 16, ScalarDistance, "scalar")
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	defer idx.Close()

	neighbors, err := idx.Search(context.Background(), entries[0].Vector, 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 1; i < len(neighbors); i++ {
		if neighbors[i].Distance < neighbors[i-1].Distance {
			t.Fatalf("distance at rank %d (%f) < rank %d (%f)",
				i, neighbors[i].Distance, i-1, neighbors[i-1].Distance)
		}
	}
}

func TestFlatIndexIdempotent(t *testing.T) {
	entries := randomUnitVectors(t, 150, 16, 3)
	idx, err := NewFlatIndex(entries, 16, ScalarDistance, "scalar")
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	defer idx.Close()

	query := entries[7].Vector
	first, err := idx.Search(context.Background(), query, 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for run := 0; run < 5; run++ {
		again, err := idx.Search(context.Background(), query, 20)
		if err != nil {
			t.Fatalf("Search run %d: %v", run, err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d returned %d neighbors, want %d", run, len(again), len(first))
		}
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("run %d rank %d = %+v, want %+v", run, i, again[i], first[i])
			}
		}
	}
}

func TestFlatIndexTieBreak(t *testing.T) {
	// 构造完全相同的向量，命中顺序必须按插入位置决断
	v := make([]float32, 8)
	v[0] = 1
	entries := []entity.IndexEntry{
		{Vector: v, Identifier: "first"},
		{Vector: v, Identifier: "second"},
		{Vector: v, Identifier: "third"},
	}
	idx, err := NewFlatIndex(entries, 8, ScalarDistance, "scalar")
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	defer idx.Close()

	neighbors, err := idx.Search(context.Background(), v, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, n := range neighbors {
		if n.Identifier != want[i] {
			t.Errorf("rank %d = %s, want %s", i, n.Identifier, want[i])
		}
	}
}

func TestFlatIndexKClamp(t *testing.T) {
	entries := randomUnitVectors(t, 5, 8, 4)
	idx, err := NewFlatIndex(entries, 8, ScalarDistance, "scalar")
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	defer idx.Close()

	neighbors, err := idx.Search(context.Background(), entries[0].Vector, 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 5 {
		t.Errorf("expected clamp to 5 neighbors, got %d", len(neighbors))
	}
}

func TestFlatIndexDimensionMismatch(t *testing.T) {
	entries := randomUnitVectors(t, 10, 8, 5)
	idx, err := NewFlatIndex(entries, 8, ScalarDistance, "scalar")
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	defer idx.Close()

	if _, err := idx.Search(context.Background(), make([]float32, 16), 3); err == nil {
		t.Error("expected error for mismatched query dimension")
	}
	if _, err := idx.Search(context.Background(), entries[0].Vector, 0); err == nil {
		t.Error("expected error for non-positive k")
	}
}

func TestFlatIndexDuplicateIdentifier(t *testing.T) {
	v := make([]float32, 4)
	v[0] = 1
	entries := []entity.IndexEntry{
		{Vector: v, Identifier: "dup"},
		{Vector: v, Identifier: "dup"},
	}
	if _, err := NewFlatIndex(entries, 4, ScalarDistance, "scalar"); err == nil {
		t.Error("expected error for duplicate identifier")
	}
}

func TestFlatIndexCancelledContext(t *testing.T) {
	entries := randomUnitVectors(t, 10, 8, 6)
	idx, err := NewFlatIndex(entries, 8, ScalarDistance, "scalar")
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	defer idx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Search(ctx, entries[0].Vector, 3); err == nil {
		t.Error("expected error for cancelled context")
	}
}
