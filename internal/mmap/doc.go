// Package mmap provides anonymous off-heap memory mappings.
//
// # Overview
//
// Accelerator-kind and accessible-kind allocations live outside the Go heap
// so that buffers shared with thousands of concurrently scheduled workers
// neither move nor add garbage collector pressure. MapAnon obtains such a
// region directly from the operating system; Close returns it.
//
// # Usage
//
//	m, err := mmap.MapAnon(size)
//	if err != nil { ... }
//	defer m.Close()
//
//	// Zero-filled, page-aligned, read-write memory:
//	data := m.Bytes()
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE
//   - Windows: VirtualAlloc with MEM_RESERVE|MEM_COMMIT
//
// # Thread Safety
//
// Mappings are safe for concurrent access through atomic operations on their
// contents. Close() is idempotent and protected by atomic operations, but
// callers must ensure no goroutine touches Bytes() after Close() returns.
package mmap
