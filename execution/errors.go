package execution

import (
	"errors"
	"fmt"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/lib/consts"
)

// SetupError is returned when the setup function fails. Nothing else of the
// run is executed after it, teardown included.
type SetupError struct {
	Err error
}

var (
	_ errext.HasExitCode    = &SetupError{}
	_ errext.HasHint        = &SetupError{}
	_ errext.HasAbortReason = &SetupError{}
)

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s() failed: %s", consts.SetupFn, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code of the underlying error, if it has one.
func (e *SetupError) ExitCode() exitcodes.ExitCode {
	return exitCodeOf(e.Err, exitcodes.ScriptException)
}

// Hint returns the hint of the underlying error, if it has one.
func (e *SetupError) Hint() string {
	return hintOf(e.Err)
}

// AbortReason implements errext.HasAbortReason.
func (e *SetupError) AbortReason() errext.AbortReason {
	return errext.AbortedBySetupError
}

// TeardownError is returned when the teardown function fails.
type TeardownError struct {
	Err error
}

var (
	_ errext.HasExitCode    = &TeardownError{}
	_ errext.HasHint        = &TeardownError{}
	_ errext.HasAbortReason = &TeardownError{}
)

func (e *TeardownError) Error() string {
	return fmt.Sprintf("%s() failed: %s", consts.TeardownFn, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code of the underlying error, if it has one.
func (e *TeardownError) ExitCode() exitcodes.ExitCode {
	return exitCodeOf(e.Err, exitcodes.ScriptException)
}

// Hint returns the hint of the underlying error, if it has one.
func (e *TeardownError) Hint() string {
	return hintOf(e.Err)
}

// AbortReason implements errext.HasAbortReason.
func (e *TeardownError) AbortReason() errext.AbortReason {
	return errext.AbortedByTeardownError
}

func exitCodeOf(err error, fallback exitcodes.ExitCode) exitcodes.ExitCode {
	var ecerr errext.HasExitCode
	if errors.As(err, &ecerr) {
		return ecerr.ExitCode()
	}
	return fallback
}

func hintOf(err error) string {
	var herr errext.HasHint
	if errors.As(err, &herr) {
		return herr.Hint()
	}
	return ""
}
