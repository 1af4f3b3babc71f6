// Package signal defines signal events and their durable append-only store.
//
// A signal event records a domain occurrence that may trigger notifications:
// a case lifecycle transition or an external trigger such as a form
// submission. Events are immutable after creation except for the processed
// flag, which the dispatcher sets once every matching hook has a queue
// entry. Append is idempotent on the event id so the workflow engine's
// recovery path can safely re-emit.
package signal
