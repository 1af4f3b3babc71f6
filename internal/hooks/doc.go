// Package hooks holds notification hook configuration and matching.
//
// Hooks are owned by an external configuration surface; this package only
// reads them. A Registry keeps an immutable snapshot indexed by signal type
// behind an atomic pointer, refreshed on a timer or explicit invalidation,
// so the dispatch path never observes a partially updated hook list.
// Recipient specs arrive in several legacy representations and are parsed
// defensively exactly once here, at the configuration boundary.
package hooks
