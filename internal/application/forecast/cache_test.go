package forecast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/internal/domain/repository"
)

// fakeIndex 测试用索引
type fakeIndex struct {
	horizon int
	size    int64
	closed  atomic.Bool
}

func (f *fakeIndex) Search(ctx context.Context, query []float32, k int) ([]entity.Neighbor, error) {
	return []entity.Neighbor{{Identifier: fmt.Sprintf("h%d", f.horizon), Distance: 0.1}}, nil
}
func (f *fakeIndex) Size() int              { return 1 }
func (f *fakeIndex) Dim() int               { return 8 }
func (f *fakeIndex) Type() entity.IndexType { return entity.IndexTypeFlat }
func (f *fakeIndex) SizeBytes() int64       { return f.size }
func (f *fakeIndex) Close() error           { f.closed.Store(true); return nil }

var _ repository.VectorIndex = (*fakeIndex)(nil)

func TestLazyCacheHitReturnsSameIndex(t *testing.T) {
	var loads atomic.Int32
	budget := NewBudgetTracker(1<<20, true)
	cache := NewLazyIndexCache(4, time.Second, budget,
		func(ctx context.Context, horizon int) (repository.VectorIndex, error) {
			loads.Add(1)
			return &fakeIndex{horizon: horizon, size: 100}, nil
		},
		func(int) (int64, error) { return 100, nil },
	)
	defer cache.Close()

	first, err := cache.Index(context.Background(), 24)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	second, err := cache.Index(context.Background(), 24)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if first != second {
		t.Error("expected cache hit to return the same index")
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("loader ran %d times, want 1", got)
	}
	if got := budget.Used(); got != 100 {
		t.Errorf("budget used = %d, want 100", got)
	}
}

func TestLazyCacheSingleFlight(t *testing.T) {
	var loads atomic.Int32
	budget := NewBudgetTracker(1<<20, true)
	cache := NewLazyIndexCache(4, time.Second, budget,
		func(ctx context.Context, horizon int) (repository.VectorIndex, error) {
			loads.Add(1)
			time.Sleep(20 * time.Millisecond)
			return &fakeIndex{horizon: horizon}, nil
		},
		func(int) (int64, error) { return 10, nil },
	)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Index(context.Background(), 12); err != nil {
				t.Errorf("Index: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Errorf("loader ran %d times under concurrency, want 1", got)
	}
}

func TestLazyCacheEvictionReleasesBudget(t *testing.T) {
	budget := NewBudgetTracker(1<<20, true)
	indexes := map[int]*fakeIndex{}
	cache := NewLazyIndexCache(1, time.Second, budget,
		func(ctx context.Context, horizon int) (repository.VectorIndex, error) {
			idx := &fakeIndex{horizon: horizon, size: 500}
			indexes[horizon] = idx
			return idx, nil
		},
		func(int) (int64, error) { return 500, nil },
	)
	defer cache.Close()

	if _, err := cache.Index(context.Background(), 6); err != nil {
		t.Fatalf("Index(6): %v", err)
	}
	if _, err := cache.Index(context.Background(), 12); err != nil {
		t.Fatalf("Index(12): %v", err)
	}

	if !indexes[6].closed.Load() {
		t.Error("expected horizon 6 index to be closed after eviction")
	}
	if indexes[12].closed.Load() {
		t.Error("horizon 12 index should remain open")
	}
	if got := budget.Used(); got != 500 {
		t.Errorf("budget used = %d, want 500 after eviction", got)
	}
}

func TestLazyCacheFailedLoadNotCached(t *testing.T) {
	var loads atomic.Int32
	budget := NewBudgetTracker(1<<20, true)
	cache := NewLazyIndexCache(4, time.Second, budget,
		func(ctx context.Context, horizon int) (repository.VectorIndex, error) {
			if loads.Add(1) == 1 {
				return nil, fmt.Errorf("transient failure")
			}
			return &fakeIndex{horizon: horizon}, nil
		},
		func(int) (int64, error) { return 50, nil },
	)
	defer cache.Close()

	if _, err := cache.Index(context.Background(), 48); err == nil {
		t.Fatal("expected first load to fail")
	}
	if got := budget.Used(); got != 0 {
		t.Errorf("budget used = %d, want 0 after failed load", got)
	}

	if _, err := cache.Index(context.Background(), 48); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := loads.Load(); got != 2 {
		t.Errorf("loader ran %d times, want 2", got)
	}
}

func TestLazyCacheBudgetRejection(t *testing.T) {
	budget := NewBudgetTracker(100, true)
	cache := NewLazyIndexCache(4, time.Second, budget,
		func(ctx context.Context, horizon int) (repository.VectorIndex, error) {
			return &fakeIndex{horizon: horizon}, nil
		},
		func(int) (int64, error) { return 1000, nil },
	)
	defer cache.Close()

	if _, err := cache.Index(context.Background(), 6); err == nil {
		t.Fatal("expected budget rejection before load")
	}
	if got := budget.Used(); got != 0 {
		t.Errorf("budget used = %d, want 0", got)
	}
}
