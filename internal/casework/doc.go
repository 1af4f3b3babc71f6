// Package casework owns the case lifecycle: the status transition graph and
// its guards, the readiness score, checklist entities, and the emission of
// signal events on every committed transition. Transitions for a single case
// are serialized; the status write and its history entry commit in one
// transaction, with signal emission recovered by reconciliation if it fails
// after the commit.
package casework
