// Package subscription keeps a customer's subscription record consistent
// with the payment provider's view, under at-least-once, possibly
// out-of-order webhook delivery.
//
// The package implements the synchronization core behind a billing
// integration: a versioned record store with optimistic concurrency, a
// table of per-event-type transition functions forming the subscription
// state machine, and a Processor that runs each event through idempotency
// dedup, per-subject locking, the transition, and a version-checked
// merge-write.
//
// # Architecture
//
//   - Record/Update: the subscription document and a partial, field-pointer
//     update merged into it
//   - Store/Driver: merge-write core over pluggable memory, MongoDB and
//     Postgres backends
//   - TransitionFunc: pure per-event-type state machine steps, overridable
//     via processor options
//   - Processor: orchestrates ledger, lock, transition and store per event
//   - Sweeper: background trial expiry feeding synthesized events into the
//     same processor path
//   - FailedOpStore: retry bookkeeping and manual replay for events that
//     could not be applied
//   - PaddleSource: verifies and normalizes Paddle webhooks into Events
//
// # Delivery Semantics
//
// Every delivery carries a fingerprint (event id plus affected object id).
// The idempotency ledger in pkg/ledger records fingerprints only after the
// record write succeeds, so failures remain retryable and replays of
// applied events become cheap no-ops. Per-subject locks from pkg/lock
// serialize most concurrent work; the record version check is the
// correctness guard when locking cannot (lock TTL takeovers, split
// deliveries).
//
// # Quick Start
//
//	store := subscription.NewStore(subscription.NewMemoryDriver())
//	proc := subscription.NewProcessor(ledger.NewMemoryLedger(), lock.NewMemoryManager(lockCfg), store)
//
//	res, err := proc.Process(ctx, evt)
//	if err != nil {
//		// transient: let the provider redeliver
//	}
//
// Production wiring swaps in the mongo or postgres driver, the redis lock
// manager and the mongo ledger; the behavior is identical.
package subscription
