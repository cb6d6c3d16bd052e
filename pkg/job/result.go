package job

// Result is the outcome of a handler invocation: a success carrying a value,
// or a failure carrying a structured error. The zero value is a failure with
// no error attached and should not be constructed directly.
type Result[T any] struct {
	value T
	err   *Error
	ok    bool
}

// Success returns a successful result carrying v.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Failure returns a failed result carrying err.
func Failure[T any](err *Error) Result[T] {
	return Result[T]{err: err}
}

// Ok reports whether the result is a success.
func (r Result[T]) Ok() bool { return r.ok }

// Value returns the success value. Meaningful only when Ok.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure error, or nil for a success.
func (r Result[T]) Err() *Error { return r.err }
