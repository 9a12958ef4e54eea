package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic converts a value from recover() into a fatal INTERNAL error
// carrying the goroutine stack. It returns nil when nothing panicked.
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}

	return ErrInternal.
		WithCause(cause).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}
