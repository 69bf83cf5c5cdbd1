package mutexarray

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gpucore"
	"github.com/hupe1980/gpucore/memory"
)

func newTestArray(t *testing.T, size int) *Array {
	t.Helper()
	ledger := memory.NewLedger(memory.WithLogger(gpucore.NoopLogger()))
	a, err := New(ledger, size)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Destroy()
		ledger.Close()
	})
	return a
}

func TestNew_InvalidSize(t *testing.T) {
	ledger := memory.NewLedger(memory.WithLogger(gpucore.NoopLogger()))
	defer ledger.Close()

	_, err := New(ledger, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = New(ledger, -3)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestArray_TryLockUnlock(t *testing.T) {
	a := newTestArray(t, 8)

	assert.Equal(t, 8, a.Size())
	assert.True(t, a.Valid())
	for i := 0; i < a.Size(); i++ {
		assert.False(t, a.Locked(i), "slot %d must start unlocked", i)
	}

	assert.True(t, a.TryLock(3))
	assert.True(t, a.Locked(3))
	assert.False(t, a.TryLock(3), "a held slot must refuse a second lock")

	a.Unlock(3)
	assert.False(t, a.Locked(3))
	assert.True(t, a.TryLock(3))
	a.Unlock(3)
}

func TestArray_TryLockPair(t *testing.T) {
	a := newTestArray(t, 4)

	// Both free: acquired, both end locked.
	assert.Equal(t, PairAcquired, a.TryLockPair(0, 1))
	assert.True(t, a.Locked(0))
	assert.True(t, a.Locked(1))
	a.Unlock(0)
	a.Unlock(1)

	// First busy: no state change.
	require.True(t, a.TryLock(0))
	assert.Equal(t, PairFirstBusy, a.TryLockPair(0, 1))
	assert.True(t, a.Locked(0))
	assert.False(t, a.Locked(1))
	a.Unlock(0)

	// Second busy: first is rolled back, no state change.
	require.True(t, a.TryLock(1))
	assert.Equal(t, PairSecondBusy, a.TryLockPair(0, 1))
	assert.False(t, a.Locked(0))
	assert.True(t, a.Locked(1))
	a.Unlock(1)
}

func TestArray_TryLockPairSymmetricContention(t *testing.T) {
	a := newTestArray(t, 2)

	// Symmetric acquisition on (0,1) and (1,0) must always make progress:
	// every goroutine retries until it wins the pair once.
	const goroutines = 32

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		i, j := 0, 1
		if g%2 == 1 {
			i, j = 1, 0
		}
		go func() {
			defer wg.Done()
			for {
				switch a.TryLockPair(i, j) {
				case PairAcquired:
					// Holding both slots, nobody else can.
					if !a.Locked(i) || !a.Locked(j) {
						t.Error("acquired pair not observed as locked")
					}
					a.Unlock(j)
					a.Unlock(i)
					return
				case PairFirstBusy, PairSecondBusy:
					// Full rollback; retry.
				}
			}
		}()
	}
	wg.Wait()

	assert.False(t, a.Locked(0))
	assert.False(t, a.Locked(1))
	assert.True(t, a.Valid())
}

func TestArray_ConcurrentDisjointSlots(t *testing.T) {
	const size = 128
	a := newTestArray(t, size)

	// Each goroutine owns its slot exclusively.
	var wg sync.WaitGroup
	wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				if !a.TryLock(i) {
					t.Errorf("slot %d: lock lost to another goroutine", i)
					return
				}
				a.Unlock(i)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < size; i++ {
		assert.False(t, a.Locked(i))
	}
}

func TestArray_SingleSlotExclusion(t *testing.T) {
	a := newTestArray(t, 1)

	// A shared counter guarded by slot 0 must not lose updates.
	const (
		goroutines = 16
		increments = 200
	)
	counter := 0

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for n := 0; n < increments; n++ {
				for !a.TryLock(0) {
				}
				counter++
				a.Unlock(0)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*increments, counter)
	assert.False(t, a.Locked(0))
}

func TestArray_Destroy(t *testing.T) {
	ledger := memory.NewLedger(memory.WithLogger(gpucore.NoopLogger()))
	defer ledger.Close()

	a, err := New(ledger, 4)
	require.NoError(t, err)
	require.Equal(t, 1, ledger.LiveBlocks(memory.KindAccelerator))

	a.Destroy()
	assert.False(t, a.Valid())
	assert.Equal(t, 0, ledger.LiveBlocks(memory.KindAccelerator))

	// Idempotent.
	a.Destroy()
	assert.True(t, ledger.Valid())
}
