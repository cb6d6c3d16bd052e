package job

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Error codes recognized by the engine. Store-level validation codes are
// surfaced to callers and never retried; handler-originated errors carry
// whatever classification the classifier assigns.
const (
	CodeInvalidJob            = "INVALID_JOB"
	CodeInvalidJobID          = "INVALID_JOB_ID"
	CodeDuplicateJob          = "DUPLICATE_JOB"
	CodeNotFound              = "NOT_FOUND"
	CodeConcurrencyConflict   = "CONCURRENCY_CONFLICT"
	CodeHandlerNotFound       = "HANDLER_NOT_FOUND"
	CodeDeserializationFailed = "DESERIALIZATION_FAILED"
	CodeSerializationFailed   = "SERIALIZATION_FAILED"
	CodeStoreError            = "STORE_ERROR"
	CodeClaimConflict         = "CLAIM_CONFLICT"
	CodeCanceled              = "CANCELED"
	CodeHandlerError          = "HANDLER_ERROR"
	CodeMaxRetriesExceeded    = "MAX_RETRIES_EXCEEDED"
)

// Cause is a language-agnostic description of an underlying error, captured
// once at the origin and persisted alongside the job. The engine treats it as
// opaque beyond logging and serialization.
type Cause struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Inner   *Cause `json:"inner,omitempty"`
}

// Clone returns a deep copy of the cause chain.
func (c *Cause) Clone() *Cause {
	if c == nil {
		return nil
	}
	out := *c
	out.Inner = c.Inner.Clone()
	return &out
}

// Error is the structured error recorded on a job. It implements the error
// interface so it can flow through ordinary error returns.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   *Cause `json:"cause,omitempty"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Clone returns a deep copy of the error.
func (e *Error) Clone() *Error {
	if e == nil {
		return nil
	}
	out := *e
	out.Cause = e.Cause.Clone()
	return &out
}

// NewError creates a structured error without a cause.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a structured error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a structured error whose cause chain is flattened from
// err. If err is already a *Error it is returned unchanged so codes assigned
// close to the origin win.
func WrapError(code, message string, err error) *Error {
	var je *Error
	if errors.As(err, &je) {
		return je
	}
	return &Error{Code: code, Message: message, Cause: Flatten(err)}
}

// Flatten converts an arbitrary error into a Cause chain by walking Unwrap.
func Flatten(err error) *Cause {
	if err == nil {
		return nil
	}
	c := &Cause{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
	if inner := errors.Unwrap(err); inner != nil {
		c.Inner = Flatten(inner)
	}
	return c
}

// FromPanic converts a recovered panic value into a structured error,
// capturing the goroutine stack at the point of recovery.
func FromPanic(v any) *Error {
	msg := fmt.Sprintf("%v", v)
	e := NewError(CodeHandlerError, "handler panicked: "+msg)
	e.Cause = &Cause{
		Type:    fmt.Sprintf("%T", v),
		Message: msg,
		Stack:   string(debug.Stack()),
	}
	return e
}
