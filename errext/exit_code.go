package errext

import (
	"errors"

	"github.com/liuxd6825/k6x/errext/exitcodes"
)

// HasExitCode is an error that decides the process exit status once it
// reaches the top of the command.
type HasExitCode interface {
	error
	ExitCode() exitcodes.ExitCode
}

// WithExitCodeIfNone attaches exitCode to err, unless something in the chain
// of err already carries one. A nil err stays nil.
func WithExitCodeIfNone(err error, exitCode exitcodes.ExitCode) error {
	if err == nil {
		return nil
	}
	if _, ok := ExitCodeOf(err); ok {
		return err
	}
	return withExitCode{error: err, exitCode: exitCode}
}

// ExitCodeOf returns the first exit code found in the chain of err.
func ExitCodeOf(err error) (exitcodes.ExitCode, bool) {
	var ecerr HasExitCode
	if !errors.As(err, &ecerr) {
		return 0, false
	}
	return ecerr.ExitCode(), true
}

type withExitCode struct {
	error
	exitCode exitcodes.ExitCode
}

var _ HasExitCode = withExitCode{}

func (we withExitCode) Unwrap() error                { return we.error }
func (we withExitCode) ExitCode() exitcodes.ExitCode { return we.exitCode }
