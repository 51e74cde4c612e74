// Package ratelimit bounds request volume per (limit-type, identifier,
// endpoint) triple using fixed time windows: each counter resets at the start
// of a discrete window rather than sliding continuously.
//
// Counters live in an external store (SQLite or Redis) so limits hold across
// stateless edge invocations and across instances. Increments are atomic in
// the store; there is no read-then-conditionally-write sequence to race
// through. Retried increments still double-count: the gating call carries no
// idempotency key, so callers must not blindly retry it.
package ratelimit
