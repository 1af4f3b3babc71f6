package logging

// Standardized structured logging keys shared across components.
const (
	// FieldComponent identifies the emitting component.
	FieldComponent = "component"
	// FieldCaseID carries a case identifier.
	FieldCaseID = "case_id"
	// FieldSignalID carries a signal event identifier.
	FieldSignalID = "signal_id"
	// FieldSignalType carries a signal type.
	FieldSignalType = "signal_type"
	// FieldHookID carries a notification hook identifier.
	FieldHookID = "hook_id"
	// FieldEntryID carries a notification queue entry identifier.
	FieldEntryID = "entry_id"
	// FieldWorkerID carries a delivery worker identifier.
	FieldWorkerID = "worker_id"
	// FieldEventType classifies the log event for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests a next step for operators.
	FieldErrorHint = "error_hint"
)
