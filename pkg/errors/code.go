package errors

// ErrorCode represents a unique error identifier.
type ErrorCode int

// Error code ranges allocation:
// 10000-10099: Generic errors
// 10100-10199: Configuration errors
// 10200-10299: Sandbox policy errors
// 10300-10399: Sandbox execution errors
// 10400-10499: Backend selection errors
// 10500-10599: Resource control errors

const (
	// Generic errors (10000-10099)
	Success       ErrorCode = 10000
	InternalError ErrorCode = 10001
	InvalidParams ErrorCode = 10002

	// Configuration errors (10100-10199)
	InvalidConfig      ErrorCode = 10100
	ConfigLoadFailed   ErrorCode = 10101
	InvalidCommandLine ErrorCode = 10102

	// Sandbox policy errors (10200-10299)
	CommandNotAllowed       ErrorCode = 10200
	UntrustedExecutablePath ErrorCode = 10201

	// Sandbox execution errors (10300-10399)
	ExecutionFailed  ErrorCode = 10300
	ExecutionTimeout ErrorCode = 10301

	// Backend selection errors (10400-10499)
	BackendUnavailable ErrorCode = 10400
	UnknownBackend     ErrorCode = 10401

	// Resource control errors (10500-10599)
	ResourceSetupFailed ErrorCode = 10500
)

// errorMessages maps error codes to their default English messages.
var errorMessages = map[ErrorCode]string{
	Success:       "Success",
	InternalError: "Internal error",
	InvalidParams: "Invalid parameters",

	InvalidConfig:      "Invalid sandbox configuration",
	ConfigLoadFailed:   "Failed to load configuration",
	InvalidCommandLine: "Invalid command line",

	CommandNotAllowed:       "Command is not in the allowed tool list",
	UntrustedExecutablePath: "Executable resolves outside trusted system directories",

	ExecutionFailed:  "Sandbox execution failed",
	ExecutionTimeout: "Sandbox execution timed out",

	BackendUnavailable: "Sandbox backend is not available on this host",
	UnknownBackend:     "Unknown sandbox backend mode",

	ResourceSetupFailed: "Failed to set up resource limits",
}

// Message returns the default message for the error code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Retryable reports whether an operation failing with this code may be
// retried by the caller. Policy violations and timeouts are never retried.
func (c ErrorCode) Retryable() bool {
	switch c {
	case InternalError, ExecutionFailed, ResourceSetupFailed:
		return true
	default:
		return false
	}
}
