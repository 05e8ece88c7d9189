package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable discriminant carried by every failure
// surfaced to a tool caller. Values are stable API.
type ErrorKind string

const (
	// Validation
	KindInvalidArgument ErrorKind = "InvalidArgument"
	KindUnknownField    ErrorKind = "UnknownField"
	KindOutOfRange      ErrorKind = "OutOfRange"

	// Policy
	KindBlockedByGuard   ErrorKind = "BlockedByGuard"
	KindRobotsDisallowed ErrorKind = "RobotsDisallowed"
	KindCreditExhausted  ErrorKind = "CreditExhausted"

	// Transport
	KindTimeout          ErrorKind = "Timeout"
	KindDNSError         ErrorKind = "DNSError"
	KindConnectError     ErrorKind = "ConnectError"
	KindTLSError         ErrorKind = "TLSError"
	KindHTTPStatus       ErrorKind = "HTTPStatus"
	KindResponseTooLarge ErrorKind = "ResponseTooLarge"
	KindInvalidRedirect  ErrorKind = "InvalidRedirect"

	// State
	KindCircuitOpen      ErrorKind = "CircuitOpen"
	KindJobNotFound      ErrorKind = "JobNotFound"
	KindJobCancelled     ErrorKind = "JobCancelled"
	KindJobExpired       ErrorKind = "JobExpired"
	KindSnapshotNotFound ErrorKind = "SnapshotNotFound"

	// Internal
	KindWorkerCrashed   ErrorKind = "WorkerCrashed"
	KindQueueOverflow   ErrorKind = "QueueOverflow"
	KindCorruptArtifact ErrorKind = "CorruptArtifact"
	KindInternal        ErrorKind = "InternalError"
)

// Guard rejection reasons, carried in Error.Reason when Kind is BlockedByGuard.
const (
	ReasonInvalidScheme    = "Scheme"
	ReasonBlockedHost      = "BlockedHost"
	ReasonPrivateAddress   = "PrivateAddress"
	ReasonMetadataHost     = "MetadataHost"
	ReasonBlockedPort      = "BlockedPort"
	ReasonResolutionFailed = "ResolutionFailed"
)

// Error is the result type for expected failures. Messages never contain
// absolute filesystem paths or stack traces.
type Error struct {
	Kind          ErrorKind `json:"kind"`
	Message       string    `json:"message"`
	Reason        string    `json:"reason,omitempty"`
	StatusCode    int       `json:"status_code,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	cause         error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError creates an Error with the given kind and formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause while preserving the kind discriminant.
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithReason sets the policy reason detail.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// WithStatus records the HTTP status that produced an HTTPStatus error.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// WithAttempts records how many attempts were consumed before surfacing.
func (e *Error) WithAttempts(n int) *Error {
	e.Attempts = n
	return e
}

// KindOf extracts the ErrorKind from any error in the chain, or KindInternal
// when the error carries no discriminant.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// AsError returns the *Error in the chain, wrapping unknown errors as
// InternalError so callers always get a sanitized envelope.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}

// Retryable reports whether the error kind is worth another attempt.
// HTTP status retryability is decided by the fetcher's retry policy.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindConnectError, KindDNSError:
		return true
	default:
		return false
	}
}
