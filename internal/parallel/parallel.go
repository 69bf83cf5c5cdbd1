// Package parallel provides a flat parallel-for over index ranges.
//
// Device-wide operations are expressed as "each of N independent indices
// performs the same small operation over shared atomic state". For maps that
// shape onto a fixed number of goroutines, each walking a contiguous chunk.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minChunk is the smallest index range worth handing to its own goroutine.
const minChunk = 2048

// For runs fn(i) for every index i in [0, n), distributing contiguous chunks
// across up to GOMAXPROCS goroutines. It returns once every index has been
// visited exactly once. fn must be safe to call concurrently for distinct
// indices.
func For(n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	if n <= chunk {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var g errgroup.Group
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				fn(i)
			}
			return nil
		})
	}
	_ = g.Wait() // chunk workers never return errors
}
