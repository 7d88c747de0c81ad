// Package orchestrator runs batches of concurrent generation requests.
//
// # Slots
//
// A batch opens N slots for one parent. Every slot gets a stable ID before
// any request starts and moves from Loading to exactly one of:
//
//   - Success: the result was persisted as an artifact
//   - Error: the call failed (or its result could not be saved)
//
// Slots settle in arrival order and never affect one another. A failed slot
// stays until it is retried (RetrySlot) or dismissed (Dismiss).
//
// # Guards
//
// At most one batch runs per parent. The guard clears once every slot of the
// batch has settled; retries do not take it again. Batches for different
// parents run concurrently.
//
// # Cancellation
//
// None. Once started, every call runs to completion; per-call deadlines
// belong to the bound Call (see Service and WithCallTimeout).
//
// # Events
//
// Subscribe streams every slot transition, for one batch or all of them.
package orchestrator
