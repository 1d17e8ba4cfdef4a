package errors

// Common error codes, grouped by area. The taxonomy category of each
// code is given by the categories map below, not by its group.
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors (Validation)
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization / shutdown errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Resource errors
	ErrResourceBusy      ErrorCode = "resource_busy"
	ErrResourceNotFound  ErrorCode = "resource_not_found"
	ErrResourceExhausted ErrorCode = "resource_exhausted"

	// Application errors
	ErrInitApp  ErrorCode = "init_app_failed"
	ErrMainLoop ErrorCode = "main_loop_failed"

	// Operation errors
	ErrOperationFailed  ErrorCode = "operation_failed"
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrInvalidOperation ErrorCode = "invalid_operation"

	// Transport errors
	ErrTransportFailed ErrorCode = "transport_failed"
	ErrTransportStatus ErrorCode = "transport_bad_status"

	// Protocol errors
	ErrProtocolMalformed ErrorCode = "protocol_malformed"
	ErrProtocolMissing   ErrorCode = "protocol_missing_field"

	// Integrity errors
	ErrIntegrityHMAC     ErrorCode = "integrity_hmac_mismatch"
	ErrIntegrityHash     ErrorCode = "integrity_hash_mismatch"
	ErrIntegritySize     ErrorCode = "integrity_size_mismatch"
	ErrIntegrityTruncate ErrorCode = "integrity_truncated_input"

	// State errors
	ErrStateInvalid   ErrorCode = "state_invalid_transition"
	ErrAlreadyRunning ErrorCode = "already_running"
)

// categories maps a subset of well-known codes to their taxonomy
// category. Packages that define their own codes register additional
// entries via RegisterCategory during package init.
var categories = map[ErrorCode]Category{
	ErrInvalidConfig:     CategoryValidation,
	ErrMissingConfig:     CategoryValidation,
	ErrBindFlags:         CategoryValidation,
	ErrReadConfig:        CategoryValidation,
	ErrInvalidInterval:   CategoryValidation,
	ErrInvalidLogLevel:   CategoryValidation,
	ErrInitFailed:        CategoryResource,
	ErrShutdownFailed:    CategoryResource,
	ErrResourceBusy:      CategoryResource,
	ErrResourceNotFound:  CategoryResource,
	ErrResourceExhausted: CategoryResource,
	ErrTransportFailed:   CategoryTransport,
	ErrTransportStatus:   CategoryTransport,
	ErrProtocolMalformed: CategoryProtocol,
	ErrProtocolMissing:   CategoryProtocol,
	ErrIntegrityHMAC:     CategoryIntegrity,
	ErrIntegrityHash:     CategoryIntegrity,
	ErrIntegritySize:     CategoryIntegrity,
	ErrIntegrityTruncate: CategoryIntegrity,
	ErrStateInvalid:      CategoryState,
	ErrTimeout:           CategoryTransport,
	ErrAlreadyRunning:    CategoryResource,
}

// RegisterCategory lets subsystem packages extend the taxonomy lookup
// with their own error codes. Call from an init() in the defining
// package.
func RegisterCategory(code ErrorCode, category Category) {
	categories[code] = category
}

func categoryOf(code ErrorCode) Category {
	if c, ok := categories[code]; ok {
		return c
	}

	return CategoryUnknown
}

// Common error messages.
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrNotImplemented:    "Operation not implemented",
	ErrUnavailable:       "Service unavailable",
	ErrInvalidConfig:     "Invalid configuration",
	ErrMissingConfig:     "Missing configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrReadConfig:        "Failed to read configuration",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrInitFailed:        "Initialization failed",
	ErrShutdownFailed:    "Shutdown failed",
	ErrResourceBusy:      "Resource is busy",
	ErrResourceNotFound:  "Resource not found",
	ErrResourceExhausted: "Resource exhausted",
	ErrOperationFailed:   "Operation failed",
	ErrTimeout:           "Operation timed out",
	ErrInvalidOperation:  "Invalid operation",
	ErrInvalidInterval:   "Invalid interval value",
	ErrInitApp:           "Failed to initialize application",
	ErrMainLoop:          "Error in main loop",
	ErrTransportFailed:   "Transport operation failed",
	ErrTransportStatus:   "Unexpected response status",
	ErrProtocolMalformed: "Malformed protocol payload",
	ErrProtocolMissing:   "Missing required field",
	ErrIntegrityHMAC:     "HMAC verification failed",
	ErrIntegrityHash:     "Hash verification failed",
	ErrIntegritySize:     "Size mismatch",
	ErrIntegrityTruncate: "Truncated input",
	ErrStateInvalid:      "Operation not valid in current state",
}

// GetErrorMessage returns the message for a given error code.
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
