package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode is the stable, machine-readable identifier for a DomainError,
// carried in the daemon's ChatError event and mapped to a gRPC status by
// the daemon server (spec.md §4.6, §7).
type ErrorCode string

const (
	// Not found
	ErrCodeConversationNotFound ErrorCode = "conversation_not_found"
	ErrCodeModelNotFound        ErrorCode = "model_not_found"
	ErrCodeBookmarkNotFound     ErrorCode = "bookmark_not_found"

	// Conflict
	ErrCodeBookmarkExists ErrorCode = "bookmark_exists"

	// Precondition
	ErrCodeNoActiveConversation  ErrorCode = "no_active_conversation"
	ErrCodeInvalidConversationID ErrorCode = "invalid_conversation_id"
	ErrCodeAmbiguousShortHash    ErrorCode = "ambiguous_short_hash"
	ErrCodeApprovalNotFound      ErrorCode = "approval_not_found"

	// Provider
	ErrCodeAuthentication    ErrorCode = "authentication"
	ErrCodeRateLimited       ErrorCode = "rate_limited"
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
	ErrCodeInvalidRequest    ErrorCode = "invalid_request"
	ErrCodeModelError        ErrorCode = "model_error"
	ErrCodeSerialization     ErrorCode = "serialization"

	// Core
	ErrCodeMaxTurnsExceeded ErrorCode = "max_turns_exceeded"
	ErrCodeUserQuit         ErrorCode = "user_quit"
	ErrCodeToolUnknown      ErrorCode = "tool_unknown"
	ErrCodeToolExecutionFailed ErrorCode = "tool_execution_failed"

	// Storage
	ErrCodeStorageIO     ErrorCode = "storage_io"
	ErrCodeCorruptJSON   ErrorCode = "corrupt_json"

	// Config
	ErrCodeConfig ErrorCode = "config"

	// Internal
	ErrCodeInternal ErrorCode = "internal"
)

// DomainError is the single structured error type every subsystem in this
// module returns for taxonomy-classified failures (spec.md §7, §9 "do not
// collapse into an opaque string"). Optional fields are populated only
// where applicable (e.g. RetryAfter only for ErrCodeRateLimited).
type DomainError struct {
	Code       ErrorCode
	Message    string
	RetryAfter time.Duration // set only via WithRetryAfter; no adapter in this module sets it
	Cause      error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DomainError) Unwrap() error { return e.Cause }

// NewDomainError constructs a DomainError with the given code and message.
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WrapDomainError wraps cause in a DomainError with the given code.
func WrapDomainError(code ErrorCode, cause error) *DomainError {
	if cause == nil {
		return nil
	}
	return &DomainError{Code: code, Message: cause.Error(), Cause: cause}
}

// WithRetryAfter sets the RetryAfter hint and returns the receiver for chaining.
func (e *DomainError) WithRetryAfter(d time.Duration) *DomainError {
	e.RetryAfter = d
	return e
}

// CodeOf extracts the ErrorCode from err if it (or something it wraps) is a
// *DomainError, otherwise returns ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether code names a transient failure (spec.md §7:
// "Only RateLimited, ServiceUnavailable, and transport/timeout are
// classified retryable"). Transport/timeout errors are represented by
// ErrCodeServiceUnavailable at this layer; adapters classify the raw
// transport error before wrapping it.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case ErrCodeRateLimited, ErrCodeServiceUnavailable:
		return true
	default:
		return false
	}
}

// Sentinel errors for cases that don't need the full DomainError shape
// inside a single package (e.g. comparisons with errors.Is in tests), kept
// in the style of internal/agent/errors.go in the teacher.
var (
	ErrToolNotFound   = errors.New("domain: tool not found")
	ErrUserQuit       = errors.New("domain: user quit")
	ErrMaxTurnsExceeded = errors.New("domain: max turns exceeded")
)

// ToolExecutionError reports that a tool's Execute call failed; it is never
// retried (spec.md §4.3 step 6) but is surfaced to the model as the content
// of a Tool-role message.
type ToolExecutionError struct {
	ToolName string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.ToolName, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }
