// Package logging builds the slog loggers used across casework.
//
// It provides console and JSON handlers, attribute helpers shared by all
// components, and the standardized field names used for structured output.
package logging
