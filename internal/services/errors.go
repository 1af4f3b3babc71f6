package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks an illegal request, such as a disallowed status
	// transition. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks a malformed hook or recipient configuration.
	// The offending record is skipped; everything else proceeds.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing entity reference.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a retryable delivery failure (timeout, rate limit).
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks a non-retryable delivery failure (bounced address).
	ErrPermanent = errors.New("permanent failure")
	// ErrIntegrity marks a persisted state change whose signal emission
	// failed. It must be reconciled by replay, never silently dropped.
	ErrIntegrity = errors.New("workflow integrity error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a delivery error should be retried. Unclassified
// errors are treated as transient so that provider hiccups are not dropped.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPermanent),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
