// Package atomicvec provides a fixed-capacity vector safely appended to and
// removed from by many concurrent goroutines without per-element locking.
//
// Slots are reserved by atomically moving the occupancy counter; reservations
// that overshoot the capacity (or undershoot zero) are rolled back
// optimistically. The rollback is not linearizable against Valid(): under
// heavy overflow contention Valid() may transiently observe the overshoot,
// but the final occupancy after all callers return always saturates at 0 or
// the capacity.
package atomicvec

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/gpucore/memory"
)

var (
	// ErrInvalidCapacity is returned when the requested capacity is not
	// positive.
	ErrInvalidCapacity = errors.New("atomicvec: capacity must be positive")
	// ErrAllocationFailed is returned when the backing allocation fails.
	ErrAllocationFailed = errors.New("atomicvec: backing allocation failed")
	// ErrIndexOutOfRange is returned by At for indices outside [0, Size()).
	ErrIndexOutOfRange = errors.New("atomicvec: index out of range")
	// ErrEmpty is returned by Front and Back on an empty vector.
	ErrEmpty = errors.New("atomicvec: vector is empty")
)

// Vector is a fixed-capacity dynamic array with an atomic occupancy counter.
// Capacity is fixed for the vector's life; an overflowing push fails instead
// of growing the storage.
//
// T must not contain pointers: the backing storage is allocated through the
// ledger outside the collector's view, so pointer fields stored there would
// be invisible to the garbage collector.
type Vector[T any] struct {
	ledger   *memory.Ledger
	data     []T
	base     unsafe.Pointer
	capacity int64
	size     atomic.Int64
}

// New creates an empty Vector of the given capacity, with the element buffer
// allocated through the ledger as accelerator memory.
func New[T any](ledger *memory.Ledger, capacity int64) (*Vector[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	var zero T
	bytes := capacity * int64(unsafe.Sizeof(zero))
	p := ledger.Allocate(bytes, memory.KindAccelerator)
	if p == nil {
		return nil, ErrAllocationFailed
	}

	return &Vector[T]{
		ledger:   ledger,
		data:     unsafe.Slice((*T)(p), capacity),
		base:     p,
		capacity: capacity,
	}, nil
}

// Destroy releases the backing storage. No concurrent accessor may remain
// and the vector must not be used afterwards.
func (v *Vector[T]) Destroy() {
	if v.data == nil {
		return
	}
	var zero T
	bytes := v.capacity * int64(unsafe.Sizeof(zero))
	v.ledger.Deallocate(v.base, bytes, memory.KindAccelerator)
	v.data = nil
	v.base = nil
}

// PushBack reserves the next slot and stores x in it. It reports false and
// leaves the vector untouched when the vector is full.
func (v *Vector[T]) PushBack(x T) bool {
	idx := v.size.Add(1) - 1
	if idx < 0 || idx >= v.capacity {
		// Over-committed reservation: roll the counter back. The index can
		// fall below zero too, when racing over-committed pops that have not
		// rolled back yet. See the package comment for the transient effect
		// on Valid().
		v.size.Add(-1)
		return false
	}
	v.data[idx] = x
	return true
}

// EmplaceBack reserves the next slot and constructs the element in place.
// construct is called only after the reservation succeeded.
func (v *Vector[T]) EmplaceBack(construct func(*T)) bool {
	idx := v.size.Add(1) - 1
	if idx < 0 || idx >= v.capacity {
		v.size.Add(-1)
		return false
	}
	construct(&v.data[idx])
	return true
}

// PopBack removes and returns the last occupied element. It reports false
// with an unspecified value when the vector is empty.
func (v *Vector[T]) PopBack() (T, bool) {
	idx := v.size.Add(-1)
	if idx < 0 || idx >= v.capacity {
		// Empty, or racing over-committed pushes that have not rolled back
		// yet: either way the reservation failed.
		v.size.Add(1)
		var zero T
		return zero, false
	}
	return v.data[idx], true
}

// Clear resets the occupancy to zero unconditionally. It must not be called
// concurrently with in-flight pushes or pops.
func (v *Vector[T]) Clear() {
	v.size.Store(0)
}

// Size returns the number of occupied slots, clamped to [0, Capacity()] to
// hide transient over- and under-commitment by concurrent callers.
func (v *Vector[T]) Size() int64 {
	s := v.size.Load()
	if s < 0 {
		return 0
	}
	if s > v.capacity {
		return v.capacity
	}
	return s
}

// Capacity returns the fixed capacity.
func (v *Vector[T]) Capacity() int64 {
	return v.capacity
}

// Empty reports whether no slot is occupied.
func (v *Vector[T]) Empty() bool {
	return v.Size() == 0
}

// Full reports whether every slot is occupied.
func (v *Vector[T]) Full() bool {
	return v.Size() == v.capacity
}

// Valid reports whether the raw occupancy counter lies within [0, capacity]
// and the bookkeeping is consistent. Under overflow or underflow contention
// the observation may transiently be false; see the package comment.
func (v *Vector[T]) Valid() bool {
	if v.data == nil || int64(len(v.data)) != v.capacity {
		return false
	}
	s := v.size.Load()
	return s >= 0 && s <= v.capacity
}

// Front returns the first occupied element.
func (v *Vector[T]) Front() (T, error) {
	if v.Size() == 0 {
		var zero T
		return zero, ErrEmpty
	}
	return v.data[0], nil
}

// Back returns the last occupied element.
func (v *Vector[T]) Back() (T, error) {
	s := v.Size()
	if s == 0 {
		var zero T
		return zero, ErrEmpty
	}
	return v.data[s-1], nil
}

// At returns the element at index i, validating 0 <= i < Size().
func (v *Vector[T]) At(i int64) (T, error) {
	if i < 0 || i >= v.Size() {
		var zero T
		return zero, ErrIndexOutOfRange
	}
	return v.data[i], nil
}

// Get returns the element at index i without bounds checking. The caller
// must supply a valid index.
func (v *Vector[T]) Get(i int64) T {
	return v.data[i]
}

// Data exposes the raw contiguous backing storage. Only [0, Size()) holds
// occupied elements.
func (v *Vector[T]) Data() []T {
	return v.data
}

// ShrinkToFit keeps the backing storage as is: the capacity is a single
// ledger allocation fixed at creation, and keeping it preserves the size,
// the element values and validity.
func (v *Vector[T]) ShrinkToFit() {}
