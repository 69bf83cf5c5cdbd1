package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/gpucore"
	"github.com/hupe1980/gpucore/internal/mem"
	"github.com/hupe1980/gpucore/internal/mmap"
)

// Ledger serializes and audits concurrent allocate/deallocate/copy requests
// across the three memory kinds. It is an explicitly constructed, explicitly
// owned object: create one per program (or per test) with NewLedger and tear
// it down with Close.
//
// Raw allocations and frees run concurrently and unordered; the ledger's
// registrations and deregistrations are applied in strict ticket order, so
// leak and size reports never interleave incorrectly under contention.
type Ledger struct {
	logger *gpucore.Logger

	registries [numKinds]registry

	// Ticket turnstile. tickets hands out positions, serving admits them
	// one at a time in issue order.
	tickets atomic.Int64
	mu      sync.Mutex
	cond    *sync.Cond
	serving int64

	// budget bounds the bytes resident off-heap (accelerator and
	// accessible kinds). nil if unlimited.
	budget      *semaphore.Weighted
	budgetBytes int64

	// copyLimiter throttles Memcpy bandwidth. nil if unlimited.
	copyLimiter *rate.Limiter

	closed atomic.Bool
}

// NewLedger creates an empty ledger. Without options it logs diagnostics as
// human-readable text on stderr and enforces no resource limits.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		logger: gpucore.NewTextLogger(slog.LevelWarn),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// registry returns the registry for kind, or nil for an unsupported kind.
func (l *Ledger) registry(kind Kind) *registry {
	if !kind.valid() {
		return nil
	}
	return &l.registries[kind]
}

// wait blocks until ticket is admitted to the turnstile. The turnstile mutex
// is held when wait returns; advance releases it.
func (l *Ledger) wait(ticket int64) {
	l.mu.Lock()
	for l.serving != ticket {
		l.cond.Wait()
	}
}

// advance retires the currently served ticket and wakes all waiters.
func (l *Ledger) advance() {
	l.serving++
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Allocate performs a raw allocation of the given kind and registers the
// resulting block. It returns nil and reports a diagnostic if bytes is not
// positive, the kind is unsupported, the raw allocation fails or the
// configured byte budget is exhausted.
//
// The raw allocation happens before the turnstile ticket is drawn, so its
// latency never holds up other callers' bookkeeping; registration itself is
// applied in strict issue order.
func (l *Ledger) Allocate(bytes int64, kind Kind) unsafe.Pointer {
	if l.closed.Load() {
		l.logger.Warn("allocate: ledger is closed")
		return nil
	}
	if bytes <= 0 {
		l.logger.WithKind(kind.String()).WithBytes(bytes).
			Warn("allocate: number of bytes is <= 0")
		return nil
	}
	reg := l.registry(kind)
	if reg == nil {
		l.logger.Warn("allocate: unsupported memory kind", "kind", int(kind))
		return nil
	}

	blk := l.rawAllocate(bytes, kind)
	if blk == nil {
		return nil
	}

	ticket := l.tickets.Add(1) - 1
	l.wait(ticket)
	reg.register(blk)
	l.advance()

	return blk.ptr
}

// rawAllocate dispatches the raw allocation for kind. Off-heap kinds come
// from anonymous mappings, host-kind memory from the aligned heap allocator.
func (l *Ledger) rawAllocate(bytes int64, kind Kind) *block {
	switch kind {
	case KindAccelerator, KindAccessible:
		if l.budget != nil && !l.budget.TryAcquire(bytes) {
			l.logger.WithKind(kind.String()).WithBytes(bytes).
				Warn("allocate: accelerator byte budget exhausted", "budget", l.budgetBytes)
			return nil
		}
		m, err := mmap.MapAnon(int(bytes))
		if err != nil {
			if l.budget != nil {
				l.budget.Release(bytes)
			}
			l.logger.WithKind(kind.String()).WithBytes(bytes).
				Warn("allocate: anonymous mapping failed", "error", err)
			return nil
		}
		data := m.Bytes()
		return &block{ptr: unsafe.Pointer(&data[0]), size: bytes, mapping: m}
	case KindHost:
		data := mem.AllocAligned(int(bytes))
		return &block{ptr: unsafe.Pointer(&data[0]), size: bytes, data: data}
	default:
		return nil
	}
}

// rawFree returns the block's memory to its backend. Safe to call at most
// once per block; the freed flag absorbs racing double frees.
func (l *Ledger) rawFree(blk *block) {
	if !blk.freed.CompareAndSwap(false, true) {
		return
	}
	if blk.mapping != nil {
		if err := blk.mapping.Close(); err != nil {
			l.logger.WithBytes(blk.size).WithPointer(blk.base()).
				Warn("deallocate: unmap failed", "error", err)
		}
		if l.budget != nil {
			l.budget.Release(blk.size)
		}
	}
	// Host blocks are reclaimed by the collector once deregistered.
}

// Deallocate performs the raw free for a registered block and deregisters it.
// A nil pointer or a pointer not currently registered under kind (double
// free, unknown pointer) degrades to a no-op with a diagnostic.
//
// The bytes argument is kept for call-site symmetry with Allocate; the
// registered size is authoritative.
func (l *Ledger) Deallocate(p unsafe.Pointer, bytes int64, kind Kind) {
	if l.closed.Load() {
		l.logger.Warn("deallocate: ledger is closed")
		return
	}
	if p == nil {
		l.logger.Warn("deallocate: deallocating null pointer not possible",
			"kind", kind.String())
		return
	}
	reg := l.registry(kind)
	if reg == nil {
		l.logger.Warn("deallocate: unsupported memory kind", "kind", int(kind))
		return
	}

	blk := reg.lookup(uintptr(p))
	if blk == nil {
		l.logger.WithKind(kind.String()).WithBytes(bytes).
			Warn("deallocate: deallocating unknown pointer or double freeing not possible")
		return
	}

	// Raw free before drawing the ticket, mirroring Allocate.
	l.rawFree(blk)

	ticket := l.tickets.Add(1) - 1
	l.wait(ticket)
	if reg.deregister(blk.base()) == nil {
		// A racing Deallocate of the same pointer won the deregistration.
		l.logger.WithKind(kind.String()).WithBytes(bytes).
			Warn("deallocate: pointer already deregistered")
	}
	l.advance()
}

// Memcpy copies bytes from src to dst after verifying that both ranges are
// fully contained in registered blocks of their respective kinds (or of the
// accessible kind). Set externalMemory when the caller asserts the pointers
// are not owned by this ledger, e.g. borrowed external buffers; the
// containment checks are skipped then.
func (l *Ledger) Memcpy(dst, src unsafe.Pointer, bytes int64, dstKind, srcKind Kind, externalMemory bool) {
	l.MemcpyContext(context.Background(), dst, src, bytes, dstKind, srcKind, externalMemory)
}

// MemcpyContext is Memcpy with a context bounding the wait on the configured
// copy-bandwidth limiter.
func (l *Ledger) MemcpyContext(ctx context.Context, dst, src unsafe.Pointer, bytes int64, dstKind, srcKind Kind, externalMemory bool) {
	if l.closed.Load() {
		l.logger.Warn("memcpy: ledger is closed")
		return
	}
	if bytes < 0 {
		l.logger.Warn("memcpy: number of bytes is < 0", "bytes", bytes)
		return
	}
	if bytes == 0 {
		return
	}
	if dst == nil || src == nil {
		l.logger.Warn("memcpy: copying to or from null pointer not possible")
		return
	}

	if !externalMemory {
		if !l.containsRange(dstKind, dst, bytes) {
			l.logger.WithKind(dstKind.String()).WithBytes(bytes).
				Warn("memcpy: copying to unknown destination pointer not possible")
			return
		}
		if !l.containsRange(srcKind, src, bytes) {
			l.logger.WithKind(srcKind.String()).WithBytes(bytes).
				Warn("memcpy: copying from unknown source pointer not possible")
			return
		}
	}

	if l.copyLimiter != nil {
		if err := l.throttleCopy(ctx, bytes); err != nil {
			l.logger.Warn("memcpy: copy aborted while rate limited",
				"bytes", bytes, "error", err)
			return
		}
	}

	copy(unsafe.Slice((*byte)(dst), bytes), unsafe.Slice((*byte)(src), bytes))
}

// containsRange checks [p, p+bytes) against the registry of kind and against
// the accessible-kind registry, which is reachable from both sides.
func (l *Ledger) containsRange(kind Kind, p unsafe.Pointer, bytes int64) bool {
	if reg := l.registry(kind); reg != nil && reg.containsRange(uintptr(p), bytes) {
		return true
	}
	return l.registries[KindAccessible].containsRange(uintptr(p), bytes)
}

// throttleCopy reserves bytes on the copy limiter in burst-sized steps.
func (l *Ledger) throttleCopy(ctx context.Context, bytes int64) error {
	burst := int64(l.copyLimiter.Burst())
	for bytes > 0 {
		n := min(bytes, burst)
		if err := l.copyLimiter.WaitN(ctx, int(n)); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// Classify returns the kind whose ledger currently contains p as a
// registered base address, or KindInvalid if none does.
func (l *Ledger) Classify(p unsafe.Pointer) Kind {
	if p == nil {
		return KindInvalid
	}
	for _, kind := range kinds {
		if l.registries[kind].contains(uintptr(p)) {
			return kind
		}
	}
	return KindInvalid
}

// SizeOf returns the registered size of the block whose base address is p.
// Interior pointers are not resolved here (only by the containment check used
// for copies); they yield 0 with a diagnostic, as does any untracked pointer.
func (l *Ledger) SizeOf(p unsafe.Pointer) int64 {
	kind := l.Classify(p)
	if kind == KindInvalid {
		l.logger.Warn("size query: pointer not allocated by this ledger or not pointing to the first element, returning 0")
		return 0
	}
	return l.registries[kind].findSize(uintptr(p))
}

// AllocationCount returns the lifetime total of registrations for kind.
func (l *Ledger) AllocationCount(kind Kind) int64 {
	reg := l.registry(kind)
	if reg == nil {
		return 0
	}
	return reg.totalRegistrations()
}

// DeallocationCount returns the lifetime total of deregistrations for kind.
func (l *Ledger) DeallocationCount(kind Kind) int64 {
	reg := l.registry(kind)
	if reg == nil {
		return 0
	}
	return reg.totalDeregistrations()
}

// LiveBlocks returns the number of currently registered blocks for kind.
func (l *Ledger) LiveBlocks(kind Kind) int {
	reg := l.registry(kind)
	if reg == nil {
		return 0
	}
	return reg.live()
}

// Valid checks the ledger invariant for every kind:
// registrations - deregistrations == live blocks.
func (l *Ledger) Valid() bool {
	for _, kind := range kinds {
		if !l.registries[kind].valid() {
			return false
		}
	}
	return true
}

// Close tears the ledger down. Every still-registered block is reported as a
// leak and its off-heap memory unmapped; the registries are left intact as
// the audit record. Close is idempotent, and a closed ledger rejects all
// further operations with a diagnostic.
//
// No allocation, deallocation or copy may be in flight when Close is called.
func (l *Ledger) Close() {
	if l.closed.Swap(true) {
		return
	}
	for _, kind := range kinds {
		for _, blk := range l.registries[kind].snapshot() {
			l.logger.WithKind(kind.String()).WithBytes(blk.size).WithPointer(blk.base()).
				Warn("close: leaked memory block")
			l.rawFree(blk)
		}
	}
}
