package errext

import (
	"errors"

	"github.com/liuxd6825/k6x/errext/exitcodes"
)

// InterruptError is an error that halts engine execution
type InterruptError struct {
	Reason string
}

var (
	_ HasExitCode    = &InterruptError{}
	_ HasAbortReason = &InterruptError{}
)

// Error returns the reason of the interruption.
func (i *InterruptError) Error() string {
	return i.Reason
}

// ExitCode returns the status code used when the k6x process exits.
func (i *InterruptError) ExitCode() exitcodes.ExitCode {
	return exitcodes.ExternalAbort
}

// AbortReason is always AbortedByUser for interruptions.
func (i *InterruptError) AbortReason() AbortReason {
	return AbortedByUser
}

// AbortTest is the reason emitted when a test run is cancelled from the outside.
const AbortTest = "test run aborted"

// IsInterruptError returns true if err is *InterruptError.
func IsInterruptError(err error) bool {
	if err == nil {
		return false
	}
	var intErr *InterruptError
	return errors.As(err, &intErr)
}
