// Package mem provides aligned heap allocation for host-kind memory.
package mem

import (
	"unsafe"
)

// Alignment is the byte alignment of host allocations (one cache line on
// common hardware, and wide enough for any atomic word).
const Alignment = 64

// AllocAligned allocates a byte slice of the given size with 64-byte alignment.
// The returned slice is guaranteed to start at a memory address divisible by 64.
//
// Note: This function allocates slightly more memory than requested to ensure alignment.
// The underlying array is kept alive by the returned slice.
func AllocAligned(size int) []byte {
	if size <= 0 {
		return nil
	}

	// Allocate size + alignment to ensure we can find an aligned offset
	totalSize := size + Alignment
	buf := make([]byte, totalSize)

	// Calculate the offset to the first aligned byte
	ptr := unsafe.Pointer(&buf[0]) //nolint:gosec // unsafe is required for memory alignment
	addr := uintptr(ptr)
	offset := (Alignment - (addr & (Alignment - 1))) & (Alignment - 1)

	return buf[offset : offset+uintptr(size)]
}
