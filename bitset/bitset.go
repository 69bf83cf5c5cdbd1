// Package bitset provides a packed, fixed-size bitset whose bits are updated
// independently by many concurrent writers through word-granular atomics.
//
// Whole-set operations are expressed per index: each index applies an atomic
// read-modify-write to its own bit only, never to the whole word blindly, so
// concurrent updates to sibling bits are never clobbered.
package bitset

import (
	"errors"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/gpucore/internal/parallel"
	"github.com/hupe1980/gpucore/memory"
)

// wordWidth is the width of one storage word, the platform's widest
// efficient atomic integer.
const wordWidth = 64

// ErrAllocationFailed is returned when the backing allocation fails.
var ErrAllocationFailed = errors.New("bitset: backing allocation failed")

// Bitset is a flat buffer of ceil(size/64) atomic words. Bits are addressed
// [0, size); the unused trailing bits of the last word are never touched and
// never counted.
type Bitset struct {
	ledger *memory.Ledger
	words  []atomic.Uint64
	base   unsafe.Pointer
	size   uint64
}

// New creates a Bitset of size bits, all cleared, with the word buffer
// allocated through the ledger as accelerator memory. A size of 0 is valid
// and allocates nothing.
func New(ledger *memory.Ledger, size uint64) (*Bitset, error) {
	b := &Bitset{ledger: ledger, size: size}
	if size == 0 {
		return b, nil
	}

	numWords := (size + wordWidth - 1) / wordWidth
	bytes := int64(numWords) * int64(unsafe.Sizeof(atomic.Uint64{}))
	p := ledger.Allocate(bytes, memory.KindAccelerator)
	if p == nil {
		return nil, ErrAllocationFailed
	}

	// Fresh mappings are zero-filled; the trailing bits of the last word
	// stay zero because no operation ever addresses them.
	b.words = unsafe.Slice((*atomic.Uint64)(p), numWords)
	b.base = p
	return b, nil
}

// Destroy releases the backing storage. The bitset must not be used
// afterwards.
func (b *Bitset) Destroy() {
	if b.words == nil {
		return
	}
	bytes := int64(len(b.words)) * int64(unsafe.Sizeof(atomic.Uint64{}))
	b.ledger.Deallocate(b.base, bytes, memory.KindAccelerator)
	b.words = nil
	b.base = nil
}

// Size returns the number of addressable bits.
func (b *Bitset) Size() uint64 {
	return b.size
}

// Set sets bit i and returns its previous value.
func (b *Bitset) Set(i uint64) bool {
	mask := uint64(1) << (i % wordWidth)
	return b.words[i/wordWidth].Or(mask)&mask != 0
}

// Unset clears bit i and returns its previous value.
func (b *Bitset) Unset(i uint64) bool {
	mask := uint64(1) << (i % wordWidth)
	return b.words[i/wordWidth].And(^mask)&mask != 0
}

// SetTo sets bit i to v and returns the previous value.
func (b *Bitset) SetTo(i uint64, v bool) bool {
	if v {
		return b.Set(i)
	}
	return b.Unset(i)
}

// Flip toggles bit i and returns the previous value.
func (b *Bitset) Flip(i uint64) bool {
	word := &b.words[i/wordWidth]
	mask := uint64(1) << (i % wordWidth)
	for {
		old := word.Load()
		if word.CompareAndSwap(old, old^mask) {
			return old&mask != 0
		}
	}
}

// Test reports whether bit i is set.
func (b *Bitset) Test(i uint64) bool {
	return b.words[i/wordWidth].Load()&(uint64(1)<<(i%wordWidth)) != 0
}

// SetAll sets every bit, one parallel per-index update at a time.
func (b *Bitset) SetAll() {
	parallel.For(int(b.size), func(i int) {
		b.Set(uint64(i))
	})
}

// ClearAll clears every bit, one parallel per-index update at a time.
func (b *Bitset) ClearAll() {
	parallel.For(int(b.size), func(i int) {
		b.Unset(uint64(i))
	})
}

// FlipAll toggles every bit, one parallel per-index update at a time.
func (b *Bitset) FlipAll() {
	parallel.For(int(b.size), func(i int) {
		b.Flip(uint64(i))
	})
}

// Count returns the number of set bits. An empty bitset reports 0.
func (b *Bitset) Count() uint64 {
	var count uint64
	for w := range b.words {
		count += uint64(bits.OnesCount64(b.words[w].Load()))
	}
	return count
}

// All reports whether every bit is set. It is false for an empty bitset:
// there is no vacuous all-bits-set case.
func (b *Bitset) All() bool {
	return b.size > 0 && b.Count() == b.size
}

// Any reports whether at least one bit is set. It is false for an empty
// bitset.
func (b *Bitset) Any() bool {
	return b.size > 0 && b.Count() > 0
}

// None reports whether no bit is set. It is false for an empty bitset,
// matching All and Any.
func (b *Bitset) None() bool {
	return b.size > 0 && b.Count() == 0
}
