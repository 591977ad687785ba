package announce

import "fmt"

// IOError wraps an underlying transport/scheduling failure surfaced during
// announce or cancel, corresponding to spec.md §7's RegisterError::Io.
type IOError struct {
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("announce: io: %s", e.Cause)
}

func (e *IOError) Unwrap() error {
	return e.Cause
}
