// Package lock implements the time-boxed per-subject exclusive lock that
// serializes webhook processing and the trial-expiry sweep for one customer.
//
// Acquire/Release follow try-lock semantics: a held subject returns
// ErrNotAcquired immediately and the caller schedules a retry through
// webhook redelivery. Every acquisition also lands in a short-lived
// recent-operations registry, which FindConflicting consults to spot a
// different operation kind in flight for the same subject (a plan change
// racing a cancellation, or a previous holder whose lock expired but which
// may still be running). Await polls until such conflicts clear, and on
// timeout proceeds with a warning.
//
// None of this is the correctness mechanism. Delivery order is not
// guaranteed anyway, and the record store's version-checked merge-write is
// what rejects lost updates; the lock only cuts contention and duplicate
// work, and the conflict wait only narrows race windows.
//
// The redis implementation builds on bsm/redislock for the lock entry and a
// sorted set for the registry. The in-memory implementation backs tests and
// single-process deployments.
package lock
