package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

func TestOrdered_PreservesInputOrder(t *testing.T) {
	// Earlier values sleep longer, so they finish last.
	delays := []time.Duration{60, 40, 20, 0}
	p := FromSlice([]int{0, 1, 2, 3})
	out := Ordered(p, 4, func(_ context.Context, i int) (int, error) {
		time.Sleep(delays[i] * time.Millisecond)
		return i * 10, nil
	})
	got, err := Collect(context.Background(), out)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []int{0, 10, 20, 30}) {
		t.Errorf("got %v, want [0 10 20 30]", got)
	}
}

func TestOrdered_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 12)
	out := Ordered(FromSlice(items), 3, func(_ context.Context, _ int) (int, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return 0, nil
	})
	got, err := Collect(context.Background(), out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(got))
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency %d exceeds limit 3", p)
	}
}

func TestOrdered_YieldsBeforeAllFinish(t *testing.T) {
	release := make(chan struct{})
	out := Ordered(FromSlice([]int{0, 1}), 2, func(_ context.Context, i int) (int, error) {
		if i == 1 {
			<-release
		}
		return i, nil
	})
	ctx := context.Background()
	iter := out.Iter(ctx)
	defer iter.Close()

	first, ok, err := iter.Next(ctx)
	if err != nil || !ok || first != 0 {
		t.Fatalf("first Next: val=%d ok=%v err=%v", first, ok, err)
	}
	close(release)
	second, ok, err := iter.Next(ctx)
	if err != nil || !ok || second != 1 {
		t.Fatalf("second Next: val=%d ok=%v err=%v", second, ok, err)
	}
}

func TestOrdered_ErrorAfterEarlierResults(t *testing.T) {
	boom := errors.New("boom")
	out := Ordered(FromSlice([]int{0, 1, 2}), 3, func(_ context.Context, i int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return i, nil
	})
	got, err := Collect(context.Background(), out)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !slices.Equal(got, []int{0}) {
		t.Errorf("expected [0] before the error, got %v", got)
	}
}

func TestOrdered_CloseCancelsInFlight(t *testing.T) {
	cancelled := make(chan struct{}, 2)
	out := Ordered(FromSlice([]int{0, 1}), 2, func(ctx context.Context, i int) (int, error) {
		if i == 0 {
			return 0, nil
		}
		<-ctx.Done()
		cancelled <- struct{}{}
		return 0, ctx.Err()
	})
	ctx := context.Background()
	iter := out.Iter(ctx)
	if _, ok, err := iter.Next(ctx); !ok || err != nil {
		t.Fatalf("first Next: ok=%v err=%v", ok, err)
	}
	iter.Close()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight call was not cancelled by Close")
	}
}

func TestOrdered_Empty(t *testing.T) {
	out := Ordered(FromSlice([]int{}), 2, func(_ context.Context, i int) (int, error) {
		return i, nil
	})
	got, err := Collect(context.Background(), out)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty, got %v err=%v", got, err)
	}
}
