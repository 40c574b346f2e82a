package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// DecodeError family
	CodeDecodeInvalidJSON:    "Inbound frame is not valid JSON",
	CodeDecodeUnknownPattern: "Inbound message matches no translator pattern",
	CodeDecodeAmbiguousFrame: "Inbound frame shape is ambiguous for this venue",

	// TransportError family
	CodeTransportDialFailed:  "WebSocket dial failed",
	CodeTransportReadFailed:  "WebSocket read failed",
	CodeTransportWriteFailed: "WebSocket write failed",
	CodeTransportClosed:      "WebSocket connection closed",
	CodeTransportPingFailed:  "WebSocket ping failed",
	CodeTransportCircuitOpen: "Circuit breaker open for this venue endpoint",

	// ConfigError family
	CodeConfigMissingField:    "Market descriptor missing required field",
	CodeConfigUnknownVenue:    "No translator registered for this venue",
	CodeConfigUnsupportedMode: "Market type not supported by this venue's translator",

	// SinkError family
	CodeSinkRejected:    "Downstream sink rejected an event",
	CodeSinkUnavailable: "Downstream sink unavailable",

	// Cache errors
	CodeCacheMiss:    "Cache miss",
	CodeCacheExpired: "Cache entry expired",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
