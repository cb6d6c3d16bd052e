package job

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// Category is the retry classification of a handler error.
type Category int

const (
	// CategoryUnknown is anything the classifier does not recognize.
	// Unknown errors retry until the budget is exhausted.
	CategoryUnknown Category = iota
	// CategoryTransient errors are expected to clear on their own:
	// timeouts, cancellation, remote unavailability.
	CategoryTransient
	// CategoryPermanent errors will not improve with retries: validation
	// failures, invariant violations. The retry budget alone still governs
	// retries; the category is recorded for callers and observability.
	CategoryPermanent
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "Transient"
	case CategoryPermanent:
		return "Permanent"
	default:
		return "Unknown"
	}
}

// permanentError marks an error as not worth retrying. Wrapping is the
// handler author's signal; the classifier also recognizes it.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the classifier reports it as CategoryPermanent.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// permanentCodes are structured-error codes that indicate a bad request or a
// broken invariant rather than a transient condition.
var permanentCodes = map[string]struct{}{
	CodeInvalidJob:            {},
	CodeInvalidJobID:          {},
	CodeDuplicateJob:          {},
	CodeHandlerNotFound:       {},
	CodeDeserializationFailed: {},
	CodeSerializationFailed:   {},
}

// Classify maps an error to a retry category.
//
// Transient: context cancellation/timeout, network timeouts, connection
// refused/reset. Permanent: explicit Permanent wrapping and validation-class
// structured errors. Everything else is Unknown.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		return CategoryPermanent
	}

	var je *Error
	if errors.As(err, &je) {
		if _, ok := permanentCodes[je.Code]; ok {
			return CategoryPermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CategoryTransient
	}

	return CategoryUnknown
}
