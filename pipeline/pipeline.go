package pipeline

import "context"

// Iterator is pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns the next value, or ok=false once the stream is exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases the iterator and everything upstream of it.
	Close() error
}

// Pipeline is a lazy stream description. Nothing runs until it is pulled
// through Iter, Collect or ForEach, and each pull creates fresh iterators.
type Pipeline[T any] struct {
	create func(ctx context.Context) Iterator[T]
}

// FromSlice yields items in order.
func FromSlice[T any](items []T) *Pipeline[T] {
	return &Pipeline[T]{
		create: func(_ context.Context) Iterator[T] {
			return &sliceIter[T]{items: items}
		},
	}
}

// Of yields the given values.
func Of[T any](items ...T) *Pipeline[T] {
	return FromSlice(items)
}

// FromChannel yields values received on ch until it is closed. The producer
// owns ch and must close it; a receive blocked past ctx yields ctx's error.
func FromChannel[T any](ch <-chan T) *Pipeline[T] {
	return &Pipeline[T]{
		create: func(_ context.Context) Iterator[T] {
			return &recvIter[T]{ch: ch}
		},
	}
}

// ForEach pulls every value and passes it to fn, stopping at the first
// error from the stream or from fn.
func ForEach[T any](ctx context.Context, p *Pipeline[T], fn func(context.Context, T) error) error {
	iter := p.create(ctx)
	defer iter.Close()
	for {
		val, ok, err := iter.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(ctx, val); err != nil {
			return err
		}
	}
}

// Collect pulls every value into a slice. On error it returns the values
// received so far.
func Collect[T any](ctx context.Context, p *Pipeline[T]) ([]T, error) {
	var out []T
	err := ForEach(ctx, p, func(_ context.Context, v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// Iter starts the pipeline. The caller must Close the iterator.
func (p *Pipeline[T]) Iter(ctx context.Context) Iterator[T] {
	return p.create(ctx)
}

type sliceIter[T any] struct {
	items []T
	index int
}

func (it *sliceIter[T]) Next(_ context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceIter[T]) Close() error { return nil }

type recvIter[T any] struct {
	ch <-chan T
}

func (it *recvIter[T]) Next(ctx context.Context) (T, bool, error) {
	select {
	case v, open := <-it.ch:
		return v, open, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

func (it *recvIter[T]) Close() error { return nil }
