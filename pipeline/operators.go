package pipeline

import "context"

// Map applies fn to each value. The first error from fn ends the stream.
func Map[I, O any](p *Pipeline[I], fn func(context.Context, I) (O, error)) *Pipeline[O] {
	return &Pipeline[O]{
		create: func(ctx context.Context) Iterator[O] {
			return &mapIter[I, O]{source: p.create(ctx), fn: fn}
		},
	}
}

// Concat yields every value of each pipeline in turn. All sources are
// created up front and closed together.
func Concat[T any](pipelines ...*Pipeline[T]) *Pipeline[T] {
	return &Pipeline[T]{
		create: func(ctx context.Context) Iterator[T] {
			iters := make([]Iterator[T], len(pipelines))
			for i, p := range pipelines {
				iters[i] = p.create(ctx)
			}
			return &concatIter[T]{iters: iters}
		},
	}
}

type mapIter[I, O any] struct {
	source Iterator[I]
	fn     func(context.Context, I) (O, error)
}

func (it *mapIter[I, O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	val, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		return zero, false, err
	}
	out, err := it.fn(ctx, val)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func (it *mapIter[I, O]) Close() error { return it.source.Close() }

type concatIter[T any] struct {
	iters []Iterator[T]
	cur   int
}

func (it *concatIter[T]) Next(ctx context.Context) (T, bool, error) {
	for ; it.cur < len(it.iters); it.cur++ {
		val, ok, err := it.iters[it.cur].Next(ctx)
		if err != nil || ok {
			return val, ok, err
		}
	}
	var zero T
	return zero, false, nil
}

// Close closes every source and returns the first error.
func (it *concatIter[T]) Close() error {
	var first error
	for _, iter := range it.iters {
		if err := iter.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
