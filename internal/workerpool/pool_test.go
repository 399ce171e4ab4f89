package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_PreservesInputOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	results, err := Run(context.Background(), items, 4, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	for i, n := range items {
		if results[i] != n*n {
			t.Errorf("results[%d] = %d, want %d", i, results[i], n*n)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var inFlight, maxInFlight int64
	items := make([]int, 20)

	_, err := Run(context.Background(), items, 3, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			cur := atomic.LoadInt64(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt64(&maxInFlight, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if maxInFlight > 3 {
		t.Errorf("max observed concurrency = %d, want <= 3", maxInFlight)
	}
}

func TestRun_FirstErrorCancelsRemaining(t *testing.T) {
	boom := errors.New("boom")
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	var started int64

	_, err := Run(context.Background(), items, 2, func(ctx context.Context, n int) (struct{}, error) {
		atomic.AddInt64(&started, 1)
		if n == 3 {
			return struct{}{}, boom
		}
		select {
		case <-time.After(20 * time.Millisecond):
			return struct{}{}, nil
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if atomic.LoadInt64(&started) == int64(len(items)) {
		t.Error("expected cancellation to prevent every item from starting")
	}
}

func TestRun_EmptyItemsReturnsImmediately(t *testing.T) {
	results, err := Run(context.Background(), []int(nil), 4, func(context.Context, int) (int, error) {
		t.Fatal("fn should never be called for an empty input")
		return 0, nil
	})
	if err != nil || results != nil {
		t.Errorf("results=%v err=%v, want nil/nil", results, err)
	}
}

func TestRunEach_AppliesSideEffect(t *testing.T) {
	var sum int64
	items := []int{1, 2, 3, 4, 5}
	err := RunEach(context.Background(), items, 2, func(_ context.Context, n int) error {
		atomic.AddInt64(&sum, int64(n))
		return nil
	})
	if err != nil {
		t.Fatalf("RunEach() failed: %v", err)
	}
	if sum != 15 {
		t.Errorf("sum = %d, want 15", sum)
	}
}
