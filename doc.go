// Package gpucore provides the low-level concurrency and resource-tracking
// primitives that back accelerator-style associative containers.
//
// The module is split into four building blocks, leaves first:
//
//   - memory: an allocation ledger that makes every raw allocate, free and
//     copy auditable and strictly ordered across concurrent callers.
//   - bitset: a packed bitset whose bits are updated independently by many
//     writers through word-granular atomics.
//   - mutexarray: per-slot try-locks, including a deadlock-free protocol for
//     acquiring two slots at once.
//   - atomicvec: a fixed-capacity vector supporting concurrent append and
//     remove with saturation semantics.
//
// # Quick Start
//
//	ledger := memory.NewLedger(memory.WithLogger(gpucore.NewTextLogger(slog.LevelWarn)))
//	defer ledger.Close()
//
//	vec, _ := atomicvec.New[uint64](ledger, 10_000)
//	defer vec.Destroy()
//
//	// Safe from any number of goroutines:
//	ok := vec.PushBack(42)
//
// # Memory Kinds
//
// The ledger tracks three kinds of memory: KindAccelerator (off-heap, outside
// the collector's view), KindHost (aligned heap memory) and KindAccessible
// (off-heap, reachable from both sides). Every primitive allocates its
// backing storage through the ledger, so leak audits cover the whole stack.
//
// # Error Model
//
// Usage errors on the ledger are reported through the diagnostics logger and
// degrade to no-ops; they never unwind the stack. Capacity errors on the
// vector and contention on the mutex array are reported through per-call
// return values.
package gpucore
