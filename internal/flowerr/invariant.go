package flowerr

import "fmt"

// InvariantViolationError is the panic value raised when an internal
// invariant does not hold. It signals a programming error, continuing would
// corrupt state.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violated: " + e.Msg
}

// Invariant panics with an *InvariantViolationError when cond is false.
func Invariant(cond bool, format string, args ...any) {
	if cond {
		return
	}

	panic(&InvariantViolationError{Msg: fmt.Sprintf(format, args...)})
}
