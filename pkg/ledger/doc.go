// Package ledger implements the append-only idempotency log that makes
// at-least-once webhook delivery safe.
//
// Payment providers redeliver events until acknowledged and give no ordering
// or exactly-once guarantee. Before applying an event the processor asks the
// ledger whether the event's fingerprint has been seen; after a successful
// application it marks the fingerprint. A redelivered event therefore
// becomes a no-op instead of a double state transition. The ledger is only
// written after success, so a failed attempt stays retryable.
//
// Two implementations are provided: a mongo-backed one for production and an
// in-memory one for tests. Old entries are removed by the Collect sweep once
// they outlive the retention window (7 days by default).
package ledger
