package dataset

import "iter"

// Stream is a lazily evaluated sequence of Examples. Streams built by this
// package are restartable: ranging twice replays the source. Transforms
// never mutate upstream examples; they clone before writing.
type Stream = iter.Seq[Example]

// FromExamples returns a Stream over a fixed slice.
func FromExamples(examples ...Example) Stream {
	return func(yield func(Example) bool) {
		for _, ex := range examples {
			if !yield(ex) {
				return
			}
		}
	}
}

// Generate returns a Stream of n examples produced by fn(0..n-1).
func Generate(n int, fn func(i int) Example) Stream {
	return func(yield func(Example) bool) {
		for i := 0; i < n; i++ {
			if !yield(fn(i)) {
				return
			}
		}
	}
}

// Map applies fn to each example.
func Map(s Stream, fn func(Example) Example) Stream {
	return func(yield func(Example) bool) {
		for ex := range s {
			if !yield(fn(ex)) {
				return
			}
		}
	}
}

// FlatMap applies fn to each example and yields every produced example in
// order. Transforms that split one record into several build on this.
func FlatMap(s Stream, fn func(Example) []Example) Stream {
	return func(yield func(Example) bool) {
		for ex := range s {
			for _, out := range fn(ex) {
				if !yield(out) {
					return
				}
			}
		}
	}
}

// Filter keeps the examples pred accepts.
func Filter(s Stream, pred func(Example) bool) Stream {
	return func(yield func(Example) bool) {
		for ex := range s {
			if !pred(ex) {
				continue
			}
			if !yield(ex) {
				return
			}
		}
	}
}

// Take yields at most n examples.
func Take(s Stream, n int) Stream {
	return func(yield func(Example) bool) {
		if n <= 0 {
			return
		}
		seen := 0
		for ex := range s {
			if !yield(ex) {
				return
			}
			seen++
			if seen == n {
				return
			}
		}
	}
}

// Chain concatenates streams in order.
func Chain(streams ...Stream) Stream {
	return func(yield func(Example) bool) {
		for _, s := range streams {
			for ex := range s {
				if !yield(ex) {
					return
				}
			}
		}
	}
}

// Repeat replays the stream n times; n <= 0 repeats forever. The source must
// be restartable.
func Repeat(s Stream, n int) Stream {
	return func(yield func(Example) bool) {
		for i := 0; n <= 0 || i < n; i++ {
			for ex := range s {
				if !yield(ex) {
					return
				}
			}
		}
	}
}

// Collect materializes the stream.
func Collect(s Stream) []Example {
	var out []Example
	for ex := range s {
		out = append(out, ex)
	}
	return out
}

// Count consumes the stream and returns the number of examples.
func Count(s Stream) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// First returns the first example, or false for an empty stream.
func First(s Stream) (Example, bool) {
	for ex := range s {
		return ex, true
	}
	return nil, false
}
