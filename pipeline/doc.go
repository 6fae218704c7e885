// Package pipeline provides lazy, pull-based stream operators.
//
// A Pipeline describes a stream; nothing runs until it is pulled via Iter,
// Collect or ForEach. Each stage pulls from the one before it on demand.
//
// Sources: FromSlice, Of, FromChannel.
// Operators: Map, Concat, Throttle, and Ordered, which runs a function on
// several values at once and still yields results in input order.
//
//	segs := pipeline.FromSlice(indices)
//	events := pipeline.Ordered(segs, 4, recognize)
//	it := pipeline.Concat(events, pipeline.Of(done)).Iter(ctx)
//	defer it.Close()
package pipeline
