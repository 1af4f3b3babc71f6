// Package notifyqueue persists pending notification deliveries. Each entry
// binds one signal event to one hook; the unique pairing makes enqueueing
// idempotent, so reprocessing a signal never produces duplicate sends.
// Workers claim entries with a visibility lease and drive them through a
// forward-only status lifecycle.
package notifyqueue
