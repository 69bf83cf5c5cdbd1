package mem

import (
	"testing"
	"unsafe"
)

func TestAllocAligned(t *testing.T) {
	for _, size := range []int{1, 63, 64, 65, 4096} {
		buf := AllocAligned(size)
		if len(buf) != size {
			t.Errorf("size %d: got len %d", size, len(buf))
		}
		addr := uintptr(unsafe.Pointer(&buf[0]))
		if addr%Alignment != 0 {
			t.Errorf("size %d: address %#x not %d-byte aligned", size, addr, Alignment)
		}
	}
}

func TestAllocAligned_ZeroFilled(t *testing.T) {
	buf := AllocAligned(128)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zero", i)
		}
	}
}

func TestAllocAligned_NonPositive(t *testing.T) {
	if AllocAligned(0) != nil {
		t.Error("expected nil for size 0")
	}
	if AllocAligned(-1) != nil {
		t.Error("expected nil for negative size")
	}
}
