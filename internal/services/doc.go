// Package services defines the shared error taxonomy for casework.
//
// Components wrap failures with one of the exported sentinel errors so
// downstream code can classify them with errors.Is: validation and
// configuration failures are rejected or skipped synchronously, transient
// delivery failures are retried with backoff, permanent delivery failures
// finalize immediately, and integrity failures are surfaced for
// reconciliation rather than dropped.
package services
