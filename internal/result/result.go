// Package result carries the outcome of a user-facing mutation.
package result

// Failure is the error half of a Result. Message is safe to show to the user.
type Failure struct {
	Message string
	// Fields holds per-field messages for validation failures.
	Fields map[string]string
	Cause  error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Result is the outcome of an auth mutation: either a value or a Failure.
type Result[T any] struct {
	Value T
	Err   *Failure
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail builds a failed result.
func Fail[T any](f *Failure) Result[T] {
	return Result[T]{Err: f}
}

// OK reports success.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Unwrap returns the value and the failure as a plain error.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		return r.Value, r.Err
	}
	return r.Value, nil
}
