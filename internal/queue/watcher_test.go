package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWatcherFiresOnlyOnDecrease(t *testing.T) {
	counts := []int{3, 3, 5, 4, 4, 2}
	i := 0
	fetch := func(context.Context) (int, error) {
		c := counts[i]
		i++
		return c, nil
	}
	fired := 0
	w := NewWatcher(fetch, time.Second, func() { fired++ })

	for range counts {
		if err := w.Poll(context.Background()); err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
	}

	// Decreases happen at 5->4 and 4->2. The first observation primes the
	// baseline and must never fire, nor do equal or increasing counts.
	if fired != 2 {
		t.Errorf("expected 2 callback invocations, got %d", fired)
	}
}

func TestWatcherFirstPollNeverFires(t *testing.T) {
	fired := false
	w := NewWatcher(func(context.Context) (int, error) { return 0, nil }, time.Second, func() { fired = true })

	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if fired {
		t.Error("first poll must only prime the baseline")
	}
}

func TestWatcherKeepsBaselineOnFetchError(t *testing.T) {
	step := 0
	fetch := func(context.Context) (int, error) {
		step++
		switch step {
		case 1:
			return 4, nil
		case 2:
			return 0, errors.New("connection refused")
		default:
			return 4, nil
		}
	}
	fired := 0
	w := NewWatcher(fetch, time.Second, func() { fired++ })

	w.Poll(context.Background())
	if err := w.Poll(context.Background()); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
	w.Poll(context.Background())

	// The failed poll must not reset the baseline to zero, which would make
	// the recovery poll look like an increase and the next real drop noisy.
	if fired != 0 {
		t.Errorf("expected no callback around a transient fetch error, got %d", fired)
	}
}
