package clock

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func mustIncrement(t *testing.T, c *LamportClock) uint64 {
	t.Helper()

	v, err := c.Increment()
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	return v
}

func TestLamportClockBasicOperations(t *testing.T) {
	c := NewLamportClock()

	if c.Time() != 0 {
		t.Errorf("Expected new clock to start at 0, got %d", c.Time())
	}

	// Increment returns the value before the increment
	if got := mustIncrement(t, c); got != 0 {
		t.Errorf("Expected first reservation to be 0, got %d", got)
	}
	if got := mustIncrement(t, c); got != 1 {
		t.Errorf("Expected second reservation to be 1, got %d", got)
	}
	if c.Time() != 2 {
		t.Errorf("Expected time to be 2, got %d", c.Time())
	}

	if c.String() != "lamport(2)" {
		t.Errorf("Unexpected string representation: %s", c.String())
	}
}

func TestLamportClockReconcile(t *testing.T) {
	c := NewLamportClock()

	c.Reconcile(10)
	if c.Time() != 11 {
		t.Errorf("Expected time 11 after observing 10, got %d", c.Time())
	}

	// An older observation must not move the clock back
	c.Reconcile(3)
	if c.Time() != 11 {
		t.Errorf("Expected time to stay at 11, got %d", c.Time())
	}

	if got := mustIncrement(t, c); got <= 10 {
		t.Errorf("Expected reservation after observing 10 to be > 10, got %d", got)
	}
}

func TestLamportClockReconcileOrdering(t *testing.T) {
	pairs := []struct {
		a, b uint64
	}{
		{0, 1},
		{1, 2},
		{5, 100},
		{41, 42},
		{1 << 32, 1 << 40},
	}

	for _, p := range pairs {
		forward := NewLamportClock()
		forward.Reconcile(p.a)
		forward.Reconcile(p.b)
		got := mustIncrement(t, forward)
		if got <= p.b {
			t.Errorf("reconcile(%d), reconcile(%d): next id %d should exceed %d", p.a, p.b, got, p.b)
		}

		reversed := NewLamportClock()
		reversed.Reconcile(p.b)
		reversed.Reconcile(p.a)
		if r := mustIncrement(t, reversed); r != got {
			t.Errorf("reconcile order changed result: forward=%d reversed=%d", got, r)
		}
	}
}

func TestLamportClockReconcileSaturates(t *testing.T) {
	c := NewLamportClock()
	c.Reconcile(math.MaxUint64)
	if c.Time() != math.MaxUint64 {
		t.Errorf("Expected clock to saturate at max, got %d", c.Time())
	}

	c.Reconcile(7)
	if c.Time() != math.MaxUint64 {
		t.Errorf("Clock moved backward after saturating: %d", c.Time())
	}
}

func TestLamportClockExhausted(t *testing.T) {
	c := NewLamportClock()
	c.Reconcile(math.MaxUint64 - 2)

	if got := mustIncrement(t, c); got != math.MaxUint64-1 {
		t.Errorf("Expected last reservation %d, got %d", uint64(math.MaxUint64-1), got)
	}

	// No value is left; the clock must neither wrap nor hand out max twice
	for i := 0; i < 2; i++ {
		before := c.Time()
		if _, err := c.Increment(); !errors.Is(err, ErrExhausted) {
			t.Errorf("Expected ErrExhausted, got %v", err)
		}
		if after := c.Time(); after < before || after != math.MaxUint64 {
			t.Errorf("Clock moved from %d to %d", before, after)
		}
	}

	c = NewLamportClock()
	c.Reconcile(math.MaxUint64)
	if _, err := c.Increment(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted after observing max, got %v", err)
	}
	if c.Time() != math.MaxUint64 {
		t.Errorf("Clock wrapped after observing max: %d", c.Time())
	}
}

func TestLamportClockConcurrentIncrement(t *testing.T) {
	const (
		workers   = 16
		perWorker = 1000
	)

	c := NewLamportClock()
	results := make(chan uint64, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				v, err := c.Increment()
				if err != nil {
					t.Errorf("Increment failed: %v", err)
					return
				}
				results <- v
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool, workers*perWorker)
	for v := range results {
		if seen[v] {
			t.Fatalf("Duplicate reservation %d", v)
		}
		seen[v] = true
	}

	// No gaps: every value in [0, N) was handed out exactly once
	for i := uint64(0); i < workers*perWorker; i++ {
		if !seen[i] {
			t.Fatalf("Missing reservation %d", i)
		}
	}
}

func TestLamportClockConcurrentReconcile(t *testing.T) {
	const workers = 32

	c := NewLamportClock()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				before := c.Time()
				c.Reconcile(uint64(i*1000 + j))
				if after := c.Time(); after < before {
					t.Errorf("Clock decreased from %d to %d", before, after)
					return
				}
				if _, err := c.Increment(); err != nil {
					t.Errorf("Increment failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	maxObserved := uint64((workers-1)*1000 + 499)
	if c.Time() <= maxObserved {
		t.Errorf("Expected clock > %d after concurrent reconcile, got %d", maxObserved, c.Time())
	}
}
