package memory

import (
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/gpucore/internal/mmap"
)

// block is one contiguous live allocation, tracked by base address and size.
type block struct {
	ptr  unsafe.Pointer
	size int64

	// data keeps heap-backed (host-kind) memory reachable while the block
	// is registered. Off-heap kinds carry a mapping instead.
	data    []byte
	mapping *mmap.Mapping

	// freed guards the raw free, which happens before the deregistration
	// reaches its turnstile turn.
	freed atomic.Bool
}

func (b *block) base() uintptr { return uintptr(b.ptr) }
func (b *block) end() uintptr  { return b.base() + uintptr(b.size) }

// registry tracks the live blocks of one memory kind, ordered by base
// address, plus lifetime registration counters. One plain mutex per registry;
// methods never call each other while holding it.
type registry struct {
	mu sync.Mutex

	blocks          []*block // sorted by base address
	registrations   int64
	deregistrations int64
}

// searchLocked returns the position of base in the ordered index and whether
// a block with exactly that base address is registered.
func (r *registry) searchLocked(base uintptr) (int, bool) {
	i := sort.Search(len(r.blocks), func(i int) bool {
		return r.blocks[i].base() >= base
	})
	return i, i < len(r.blocks) && r.blocks[i].base() == base
}

// register inserts b into the ordered index and bumps the lifetime counter.
func (r *registry) register(b *block) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, _ := r.searchLocked(b.base())
	r.blocks = append(r.blocks, nil)
	copy(r.blocks[i+1:], r.blocks[i:])
	r.blocks[i] = b
	r.registrations++
}

// deregister removes the block with the given base address and returns it,
// or nil if no such block is registered.
func (r *registry) deregister(base uintptr) *block {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.searchLocked(base)
	if !ok {
		return nil
	}
	b := r.blocks[i]
	r.blocks = append(r.blocks[:i], r.blocks[i+1:]...)
	r.deregistrations++
	return b
}

// lookup returns the block with the given base address, or nil.
func (r *registry) lookup(base uintptr) *block {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.searchLocked(base)
	if !ok {
		return nil
	}
	return r.blocks[i]
}

// contains reports whether base is a registered base address.
func (r *registry) contains(base uintptr) bool {
	return r.lookup(base) != nil
}

// containsRange reports whether [base, base+size) is fully enclosed by some
// registered block. Unlike contains, interior pointers resolve here; the scan
// is restricted to blocks whose base does not exceed the query's end address.
func (r *registry) containsRange(base uintptr, size int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := base + uintptr(size)
	bound := sort.Search(len(r.blocks), func(i int) bool {
		return r.blocks[i].base() > end
	})
	for i := 0; i < bound; i++ {
		b := r.blocks[i]
		if b.base() <= base && end <= b.end() {
			return true
		}
	}
	return false
}

// findSize returns the size of the block with the given base address,
// or 0 if no such block is registered.
func (r *registry) findSize(base uintptr) int64 {
	b := r.lookup(base)
	if b == nil {
		return 0
	}
	return b.size
}

// live returns the number of currently registered blocks.
func (r *registry) live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocks)
}

func (r *registry) totalRegistrations() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registrations
}

func (r *registry) totalDeregistrations() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deregistrations
}

// valid checks the registry invariant:
// registrations - deregistrations == live blocks.
func (r *registry) valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registrations-r.deregistrations == int64(len(r.blocks))
}

// snapshot returns the currently registered blocks. The returned slice is a
// copy; the blocks themselves are shared.
func (r *registry) snapshot() []*block {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*block, len(r.blocks))
	copy(out, r.blocks)
	return out
}
