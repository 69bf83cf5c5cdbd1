package memory

import (
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/gpucore"
)

// Option is a configuration option for Ledger.
type Option func(*Ledger)

// WithLogger sets the diagnostics logger. Diagnostics are advisory: the
// program continues with best-effort semantics after every reported error.
func WithLogger(logger *gpucore.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithAcceleratorLimit bounds the bytes resident off-heap (accelerator and
// accessible kinds). Allocations beyond the budget fail with a diagnostic
// instead of blocking. A limit of 0 or less means unlimited.
func WithAcceleratorLimit(bytes int64) Option {
	return func(l *Ledger) {
		if bytes > 0 {
			l.budget = semaphore.NewWeighted(bytes)
			l.budgetBytes = bytes
		}
	}
}

// WithCopyRate throttles Memcpy to the given bytes per second, modelling a
// bounded host/accelerator transfer channel. A rate of 0 or less means
// unlimited.
func WithCopyRate(bytesPerSecond int64) Option {
	return func(l *Ledger) {
		if bytesPerSecond > 0 {
			l.copyLimiter = rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
		}
	}
}
