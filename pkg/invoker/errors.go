package invoker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArguments reports arguments whose shape does not match the argument kind.
	ErrInvalidArguments = errors.New("invoker: invalid arguments")
	// ErrEmptyResponse reports a reply with no content to parse.
	ErrEmptyResponse = errors.New("invoker: empty response")
	// ErrNotConnected reports an invocation attempted on a call that never connected.
	ErrNotConnected = errors.New("invoker: not connected to provider")
)

// InvocationError wraps a failed send or parse together with the command and
// the raw reply seen at the time of failure.
type InvocationError struct {
	Command string
	Raw     string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoker: %q failed, resp=%q: %v", e.Command, e.Raw, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
