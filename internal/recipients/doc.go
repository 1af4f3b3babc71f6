// Package recipients resolves a hook's recipient configuration into the
// concrete address lists a delivery attempt needs. Role references are
// expanded through a directory; unknown roles degrade to a partial
// resolution rather than failing the whole hook.
package recipients
