// Package mpscqueue implements a lock-free pointer-ring queue used by
// source filters whose upstream feed runs on its own goroutine (a Redis
// subscription callback, an MQTT message handler) decoupled from the
// scheduler worker goroutine that calls the filter's Input method. Input
// can only run during a scheduler-owned call, so a source filter needs
// somewhere to stash messages that arrive in between calls; this queue
// is that stash.
//
// Uses a compare-and-swap claim-then-store algorithm, cache-line padded
// against false sharing, exposed as a named generic Queue type so
// callers aren't required to understand atomic.Pointer slices to use
// it.
package mpscqueue

import (
	"runtime"
	"sync/atomic"
)

const cacheLine = 64

type padding [cacheLine]byte

// Queue is a bounded multi-producer multi-consumer queue of *T. Capacity
// must be a power of two.
type Queue[T any] struct {
	_              padding
	capacity       uint32
	mask           uint32
	_              padding
	writePos       atomic.Uint64
	_              padding
	readPos        atomic.Uint64
	_              padding
	slots          []atomic.Pointer[T]
	_              padding
	cachedWritePos atomic.Uint64
	_              padding
	cachedReadPos  atomic.Uint64
}

// New builds a Queue with the given capacity, which must be a power of
// two (so index wrapping can use a bitmask instead of a modulo).
func New[T any](capacity uint32) *Queue[T] {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("mpscqueue: capacity must be a power of 2")
	}
	return &Queue[T]{
		capacity: capacity,
		mask:     capacity - 1,
		slots:    make([]atomic.Pointer[T], capacity),
	}
}

// TryPush claims the next write slot and stores item, returning false
// if the queue is currently full.
func (q *Queue[T]) TryPush(item *T) bool {
	for {
		writePos := q.writePos.Load()
		readPos := q.cachedReadPos.Load()

		if writePos-readPos >= uint64(q.capacity) {
			readPos = q.readPos.Load()
			q.cachedReadPos.Store(readPos)
			if writePos-readPos >= uint64(q.capacity) {
				return false
			}
		}

		if q.writePos.CompareAndSwap(writePos, writePos+1) {
			q.slots[writePos&uint64(q.mask)].Store(item)
			return true
		}
		runtime.Gosched()
	}
}

// TryPop claims the next read slot and returns its item, or nil if the
// queue is currently empty.
func (q *Queue[T]) TryPop() *T {
	for {
		readPos := q.readPos.Load()
		writePos := q.cachedWritePos.Load()

		if readPos >= writePos {
			writePos = q.writePos.Load()
			q.cachedWritePos.Store(writePos)
			if readPos >= writePos {
				return nil
			}
		}

		if q.readPos.CompareAndSwap(readPos, readPos+1) {
			idx := readPos & uint64(q.mask)
			// The writer's Store may not have landed yet even though it
			// won the CAS race on writePos; spin briefly rather than
			// hand back a torn read.
			for spins := 0; ; spins++ {
				if v := q.slots[idx].Swap(nil); v != nil {
					return v
				}
				if spins > 1000 {
					return nil
				}
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Len returns the approximate number of items currently queued.
func (q *Queue[T]) Len() int {
	w := q.writePos.Load()
	r := q.readPos.Load()
	n := w - r
	if n > uint64(q.capacity) {
		n = uint64(q.capacity)
	}
	return int(n)
}

// Cap returns the queue's fixed capacity.
func (q *Queue[T]) Cap() int { return int(q.capacity) }
