package pipeline

import (
	"context"
	"time"
)

// Throttle drops values that arrive faster than the given interval. The first
// value in each interval window is emitted immediately. If the most recent
// value was dropped when the source ends, it is emitted as a trailing value,
// so consumers always observe the final state.
func Throttle[T any](p *Pipeline[T], interval time.Duration) *Pipeline[T] {
	return &Pipeline[T]{
		create: func(ctx context.Context) Iterator[T] {
			return &throttleIter[T]{
				source:   p.create(ctx),
				interval: interval,
			}
		},
	}
}

type throttleIter[T any] struct {
	source   Iterator[T]
	interval time.Duration
	lastEmit time.Time

	pending    T
	hasPending bool
}

func (it *throttleIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	for {
		val, ok, err := it.source.Next(ctx)
		if err != nil {
			return val, false, err
		}
		if !ok {
			if it.hasPending {
				it.hasPending = false
				return it.pending, true, nil
			}
			return val, false, nil
		}
		now := time.Now()
		if it.lastEmit.IsZero() || now.Sub(it.lastEmit) >= it.interval {
			it.lastEmit = now
			it.hasPending = false
			return val, true, nil
		}
		it.pending, it.hasPending = val, true
	}
}

func (it *throttleIter[T]) Close() error { return it.source.Close() }
