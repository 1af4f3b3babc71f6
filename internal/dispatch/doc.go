// Package dispatch turns signal events into delivered notifications. The
// dispatcher polls unprocessed signals, matches them against the hook
// snapshot, resolves recipients, and enqueues delivery entries; the worker
// pool leases entries and drives them through the channel provider with
// bounded timeouts and exponential backoff.
package dispatch
