package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem module errors
// 13000-13999: Submission module errors
// 14000-14999: Contest module errors
// 17000-17999: Judging backend errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError ErrorCode = 10100

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Problem Module Errors (12000-12999) ==========

	ProblemNotFound  ErrorCode = 12000
	TestCaseNotFound ErrorCode = 12100

	// ========== Submission Module Errors (13000-13999) ==========

	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003

	// Watcher (13300-13399)
	AlreadyWatching ErrorCode = 13300
	WatcherClosed   ErrorCode = 13301

	// ========== Contest Module Errors (14000-14999) ==========

	ContestNotFound ErrorCode = 14000

	// Registration (14100-14199)
	RegistrationFailed ErrorCode = 14102
	JoinStateInvalid   ErrorCode = 14105

	RankingNotAvailable ErrorCode = 14200

	// ========== Judging Backend Errors (17000-17999) ==========

	// BackendUnavailable covers transport failures reaching the backend.
	BackendUnavailable ErrorCode = 17000
	// BackendStatusError is a non-success HTTP status returned by the backend.
	BackendStatusError ErrorCode = 17001
	// BackendMalformedResponse is a non-JSON or undecodable backend body.
	BackendMalformedResponse ErrorCode = 17002
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError: "Database operation failed",
	CacheError:    "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Problem
	ProblemNotFound:  "Problem not found",
	TestCaseNotFound: "Test case not found",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	AlreadyWatching:        "Submission is already being watched",
	WatcherClosed:          "Watcher is closed",

	// Contest
	ContestNotFound:     "Contest not found",
	RegistrationFailed:  "Failed to join contest",
	JoinStateInvalid:    "Join state is invalid",
	RankingNotAvailable: "Ranking is not available",

	// Backend
	BackendUnavailable:       "Judging backend is unavailable",
	BackendStatusError:       "Judging backend returned an error",
	BackendMalformedResponse: "Judging backend returned a malformed response",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == ProblemNotFound, c == ContestNotFound, c == SubmissionNotFound, c == TestCaseNotFound:
		return 404
	case c == AlreadyWatching:
		return 409
	case c == CodeTooLarge:
		return 413
	case c == TooManyRequests:
		return 429
	case c == BackendMalformedResponse, c == BackendStatusError:
		return 502
	case c == ServiceUnavailable, c == BackendUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == JoinStateInvalid:
		return 400
	default:
		return 500
	}
}
