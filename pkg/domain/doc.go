// Package domain defines the core types and collaborator interfaces of the
// step router.
//
// This package has ZERO dependencies outside the Go standard library. It holds:
//
// - The event envelope (Event) carried between chain steps
// - The step enumeration (Step) that encodes a position in the chain
// - Dispatch plans (Plan, Delivery) produced by routing
// - Interfaces implemented by infrastructure packages (Sender, CounterStore)
//
// The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
