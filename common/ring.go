package common

import (
	"sync"
)

// RingBuffer is a fixed-capacity FIFO. Adding to a full buffer evicts the oldest element.
// Originally from https://medium.com/@nathanbcrocker/a-practical-guide-to-implementing-a-generic-ring-buffer-in-go-866d27ec1a05,
// trimmed down to what the fusion session needs.
type RingBuffer[T any] struct {
	buffer []T
	size   int
	mu     sync.Mutex
	write  int
	count  int
}

// NewRingBuffer creates a new ring buffer with a fixed size.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size < 1 {
		size = 1
	}
	return &RingBuffer[T]{
		buffer: make([]T, size),
		size:   size,
	}
}

// Add inserts a new element into the buffer, overwriting the oldest if full.
func (rb *RingBuffer[T]) Add(value T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buffer[rb.write] = value
	rb.write = (rb.write + 1) % rb.size

	if rb.count < rb.size {
		rb.count++
	}
}

// Get returns a copy of the contents of the buffer in FIFO order.
func (rb *RingBuffer[T]) Get() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	result := make([]T, 0, rb.count)
	for i := 0; i < rb.count; i++ {
		result = append(result, rb.buffer[rb.index(i)])
	}
	return result
}

// Tail returns the last (last in) n elements in the buffer, oldest first.
func (rb *RingBuffer[T]) Tail(n int) []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > rb.count {
		n = rb.count
	}
	if n < 0 {
		n = 0
	}
	result := make([]T, 0, n)
	for i := rb.count - n; i < rb.count; i++ {
		result = append(result, rb.buffer[rb.index(i)])
	}
	return result
}

// Len returns the current number of elements in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap returns the fixed capacity of the buffer.
func (rb *RingBuffer[T]) Cap() int {
	return rb.size
}

// Last returns the most recently added element.
// It returns the zero value when the buffer is empty; check Len first.
func (rb *RingBuffer[T]) Last() T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.count == 0 {
		var zero T
		return zero
	}
	return rb.buffer[(rb.write+rb.size-1)%rb.size]
}

// First returns the oldest element.
func (rb *RingBuffer[T]) First() T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.count == 0 {
		var zero T
		return zero
	}
	return rb.buffer[rb.index(0)]
}

// Scan walks the buffer oldest-first until fn returns false.
func (rb *RingBuffer[T]) Scan(fn func(T) bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i := 0; i < rb.count; i++ {
		if !fn(rb.buffer[rb.index(i)]) {
			break
		}
	}
}

// Reset empties the buffer without reallocating.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	var zero T
	for i := range rb.buffer {
		rb.buffer[i] = zero
	}
	rb.write = 0
	rb.count = 0
}

func (rb *RingBuffer[T]) index(i int) int {
	return (rb.write + rb.size - rb.count + i) % rb.size
}
