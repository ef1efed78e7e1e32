package ring

//
//Copyright 2018 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
import "sync/atomic"

// SPSC is a fixed capacity single producer/single consumer queue. One
// goroutine (or timer context) may call Put and one other may call Get and
// Peek without any locking. Neither side ever blocks; Put fails when the
// queue is full and the drop is counted.
type SPSC[T any] struct {
	items   []T
	mask    uint32
	head    atomic.Uint32 // next item to read, owned by the consumer
	tail    atomic.Uint32 // next free slot, owned by the producer
	dropped atomic.Uint64
}

// New creates a queue. The capacity is rounded up to a power of two.
func New[T any](capacity int) *SPSC[T] {
	size := uint32(2)
	for int(size) < capacity {
		size <<= 1
	}
	return &SPSC[T]{
		items: make([]T, size),
		mask:  size - 1,
	}
}

// Put adds an item. It returns false if the queue is full.
func (r *SPSC[T]) Put(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() > r.mask {
		r.dropped.Add(1)
		return false
	}
	r.items[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// Get removes the oldest item
func (r *SPSC[T]) Get() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.items[head&r.mask]
	r.items[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}

// Peek returns the oldest item without removing it
func (r *SPSC[T]) Peek() (T, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		var zero T
		return zero, false
	}
	return r.items[head&r.mask], true
}

// Len returns the number of queued items
func (r *SPSC[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the capacity
func (r *SPSC[T]) Cap() int {
	return len(r.items)
}

// Free returns the number of items that can be added
func (r *SPSC[T]) Free() int {
	return r.Cap() - r.Len()
}

// Dropped returns the number of items rejected because the queue was full
func (r *SPSC[T]) Dropped() uint64 {
	return r.dropped.Load()
}
