package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *MonitorError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *MonitorError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Session lifecycle errors

func SpawnFailed(command string, cause error) *MonitorError {
	return Wrap(cause, CategorySpawn, SeverityFatal, "build process could not be started").
		WithContext("command", command)
}

func ConflictDetected(activeSession string) *MonitorError {
	return New(CategoryConflict, SeverityWarning, "another build session is active").
		WithContext("active_session", activeSession)
}

func SessionNotFound(id string) *MonitorError {
	return New(CategoryNotFound, SeverityWarning, "no session with that id").
		WithContext("session_id", id)
}

func TerminationUnresolved(id string, cause error) *MonitorError {
	return Wrap(cause, CategoryTermination, SeverityError, "forced stop did not take effect").
		WithContext("session_id", id)
}

// Storage errors

func PersistFailed(what string, cause error) *MonitorError {
	return WrapRetryable(cause, CategoryStorage, SeverityWarning, "durable write failed").
		WithContext("target", what)
}

func StorageError(operation string, cause error) *MonitorError {
	return Wrap(cause, CategoryStorage, SeverityError, "storage operation failed").
		WithContext("operation", operation)
}

// Process inspection errors

func ProcessScanError(cause error) *MonitorError {
	return Wrap(cause, CategoryProcess, SeverityWarning, "process enumeration failed")
}

// Internal errors

func InternalError(message string, cause error) *MonitorError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
