// Package mutexarray provides per-slot mutual exclusion for massively
// parallel workloads, including deadlock-free acquisition of two slots at
// once.
//
// Locks never block: acquisition failure is signaled through return values
// and callers retry themselves. Blocking lock order across thousands of
// concurrently scheduled workers risks livelock, so the pair protocol is
// all-or-nothing with full rollback instead.
package mutexarray

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/gpucore/memory"
)

var (
	// ErrInvalidSize is returned when the requested size is not positive.
	ErrInvalidSize = errors.New("mutexarray: size must be positive")
	// ErrAllocationFailed is returned when the backing allocation fails.
	ErrAllocationFailed = errors.New("mutexarray: backing allocation failed")
)

// Slot states.
const (
	unlocked uint32 = 0
	locked   uint32 = 1
)

// Results of TryLockPair.
const (
	// PairAcquired means both slots were acquired and remain locked.
	PairAcquired = -1
	// PairFirstBusy means the first slot could not be acquired; nothing
	// changed.
	PairFirstBusy = 0
	// PairSecondBusy means the second slot could not be acquired; the first
	// was rolled back and nothing changed.
	PairSecondBusy = 1
)

// Array is a fixed-size array of non-reentrant try-lock mutexes, one atomic
// flag per slot. A slot is owned by whichever caller locked it and must be
// released by that caller.
type Array struct {
	ledger *memory.Ledger
	flags  []atomic.Uint32
	base   unsafe.Pointer
	size   int
}

// New creates an Array of size mutexes, all unlocked, with the flag buffer
// allocated through the ledger as accelerator memory.
func New(ledger *memory.Ledger, size int) (*Array, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	bytes := int64(size) * int64(unsafe.Sizeof(atomic.Uint32{}))
	p := ledger.Allocate(bytes, memory.KindAccelerator)
	if p == nil {
		return nil, ErrAllocationFailed
	}

	// Fresh mappings are zero-filled, so every slot starts unlocked.
	return &Array{
		ledger: ledger,
		flags:  unsafe.Slice((*atomic.Uint32)(p), size),
		base:   p,
		size:   size,
	}, nil
}

// Destroy releases the backing storage. The array must not be used afterwards
// and no caller may still hold any of its slots.
func (a *Array) Destroy() {
	if a.flags == nil {
		return
	}
	bytes := int64(a.size) * int64(unsafe.Sizeof(atomic.Uint32{}))
	a.ledger.Deallocate(a.base, bytes, memory.KindAccelerator)
	a.flags = nil
	a.base = nil
}

// Size returns the number of slots.
func (a *Array) Size() int {
	return a.size
}

// Valid reports whether the internal state is structurally consistent. It
// says nothing about which caller holds which slot.
func (a *Array) Valid() bool {
	return a.flags != nil && len(a.flags) == a.size
}

// TryLock atomically transitions slot i from unlocked to locked and reports
// whether the attempt succeeded. It never blocks.
func (a *Array) TryLock(i int) bool {
	return a.flags[i].CompareAndSwap(unlocked, locked)
}

// Unlock transitions slot i to unlocked. The caller must currently hold the
// slot; unlocking a slot held by another caller is undefined behavior.
func (a *Array) Unlock(i int) {
	a.flags[i].Store(unlocked)
}

// Locked observes the current state of slot i. The answer is racy by nature
// and meant for diagnostics and tests only.
func (a *Array) Locked(i int) bool {
	return a.flags[i].Load() == locked
}

// TryLockPair attempts to acquire slots i and j without deadlocking against a
// symmetric attempt on (j, i). On any failure the array is left exactly as it
// was before the call; callers needing both slots retry themselves.
//
// It returns PairAcquired (-1) with both slots locked, PairFirstBusy (0) if
// slot i could not be taken, or PairSecondBusy (1) if slot j could not be
// taken after i was, in which case i is released again.
func (a *Array) TryLockPair(i, j int) int {
	if !a.TryLock(i) {
		return PairFirstBusy
	}
	if !a.TryLock(j) {
		a.Unlock(i)
		return PairSecondBusy
	}
	return PairAcquired
}
