package forecast

import (
	"sync"
	"testing"

	"analog-forecast-api/pkg/errors"
)

func TestBudgetAcquireRelease(t *testing.T) {
	tracker := NewBudgetTracker(1000, true)

	p1, err := tracker.Acquire(400)
	if err != nil {
		t.Fatalf("Acquire(400): %v", err)
	}
	p2, err := tracker.Acquire(600)
	if err != nil {
		t.Fatalf("Acquire(600): %v", err)
	}
	if got := tracker.Used(); got != 1000 {
		t.Errorf("Used() = %d, want 1000", got)
	}

	if _, err := tracker.Acquire(1); err == nil {
		t.Fatal("expected rejection above limit")
	} else if !errors.IsCode(err, errors.CodeBudgetExceeded) {
		t.Errorf("error code = %v, want CodeBudgetExceeded", err)
	}

	p1.Release()
	if got := tracker.Used(); got != 600 {
		t.Errorf("Used() after release = %d, want 600", got)
	}

	p3, err := tracker.Acquire(400)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	p2.Release()
	p3.Release()
	if got := tracker.Used(); got != 0 {
		t.Errorf("Used() after all releases = %d, want 0", got)
	}
}

func TestBudgetReleaseIdempotent(t *testing.T) {
	tracker := NewBudgetTracker(100, true)
	p, err := tracker.Acquire(60)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	p.Release()
	p.Release()
	p.Release()

	if got := tracker.Used(); got != 0 {
		t.Errorf("Used() = %d, want 0 after repeated release", got)
	}
}

func TestBudgetNoFailFast(t *testing.T) {
	tracker := NewBudgetTracker(100, false)
	p, err := tracker.Acquire(500)
	if err != nil {
		t.Fatalf("Acquire above limit without fail-fast: %v", err)
	}
	if got := tracker.Used(); got != 500 {
		t.Errorf("Used() = %d, want 500", got)
	}
	p.Release()
}

func TestBudgetConcurrent(t *testing.T) {
	const (
		workers = 32
		rounds  = 200
	)
	tracker := NewBudgetTracker(workers*10, true)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				p, err := tracker.Acquire(10)
				if err != nil {
					continue
				}
				if tracker.Used() > tracker.Limit() {
					t.Error("usage exceeded limit")
				}
				p.Release()
			}
		}()
	}
	wg.Wait()

	if got := tracker.Used(); got != 0 {
		t.Errorf("Used() = %d, want 0 after all workers done", got)
	}
}
