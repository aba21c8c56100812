// Package stream holds the channel pipeline stages the commands are built from.
package stream

import (
	"context"
)

// Slice emits the elements of in, in order.
func Slice[T any](ctx context.Context, in []T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for _, element := range in {
			select {
			case <-ctx.Done():
				return
			case out <- element:
			}
		}
	}()
	return out
}

// recv reads the next element of in, giving up when ctx is done.
func recv[T any](ctx context.Context, in <-chan T) (T, bool) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, false
	case element, ok := <-in:
		return element, ok
	}
}

// Filter passes along the elements for which predicate is true.
func Filter[T any](ctx context.Context, predicate func(T) bool, in <-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			element, ok := recv(ctx, in)
			if !ok {
				return
			}
			if !predicate(element) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- element:
			}
		}
	}()
	return out
}

// Transform maps every element of in through transformer.
func Transform[I any, O any](ctx context.Context, transformer func(I) O, in <-chan I) <-chan O {
	out := make(chan O)
	go func() {
		defer close(out)
		for {
			element, ok := recv(ctx, in)
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- transformer(element):
			}
		}
	}()
	return out
}

// Collect drains in into a slice, stopping early if ctx is done.
func Collect[T any](ctx context.Context, in <-chan T) []T {
	out := make([]T, 0)
	for {
		element, ok := recv(ctx, in)
		if !ok {
			return out
		}
		out = append(out, element)
	}
}
