// Package memory provides the allocation ledger: a host-side bookkeeping
// layer that makes every raw allocation, deallocation and copy auditable.
//
// # Overview
//
// A Ledger owns one registry of live memory blocks per memory kind
// (accelerator, host, accessible-from-both). Every raw allocate and free is
// gated through a ticket turnstile so that registrations and deregistrations
// are applied in exactly the order the raw calls were issued, regardless of
// how long the raw calls themselves take. Copies are checked for full
// containment in a registered block before they touch memory.
//
// # Usage
//
//	ledger := memory.NewLedger()
//	defer ledger.Close()
//
//	p := ledger.Allocate(1024, memory.KindAccelerator)
//	ledger.Memcpy(p, src, 1024, memory.KindAccelerator, memory.KindHost, false)
//	ledger.Deallocate(p, 1024, memory.KindAccelerator)
//
// # Failure Semantics
//
// All error conditions are reported, not fatal: the offending call degrades
// to a no-op (Allocate returns nil, Deallocate and Memcpy return without
// effect) and a diagnostic is emitted through the configured logger. A
// rejected operation never violates the ledger invariant that live blocks
// equal registrations minus deregistrations.
package memory
