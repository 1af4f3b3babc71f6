// Package storage owns the shared SQLite database behind casework.
//
// All stores (cases, signal events, hooks, notification queue) operate on
// the single database this package opens, so multi-table writes such as a
// status change plus its history entry commit in one transaction. The
// package applies the WAL pragmas, the embedded schema, and a busy-retry
// wrapper shared by every store.
package storage
