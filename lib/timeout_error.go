package lib

import (
	"fmt"
	"time"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/lib/consts"
)

// TimeoutError is used when setup or teardown take longer than allowed.
type TimeoutError struct {
	place string
	d     time.Duration
}

var (
	_ errext.HasExitCode = TimeoutError{}
	_ errext.HasHint     = TimeoutError{}
)

// NewTimeoutError returns a new TimeoutError reporting that timeout has happened
// at the given place and given duration.
func NewTimeoutError(place string, d time.Duration) TimeoutError {
	return TimeoutError{place: place, d: d}
}

// String returns timeout error in human readable format.
func (t TimeoutError) String() string {
	return fmt.Sprintf("%s execution timed out after %.f seconds", t.place, t.d.Seconds())
}

// Error implements error interface.
func (t TimeoutError) Error() string {
	return t.String()
}

// Place returns the place where timeout occurred.
func (t TimeoutError) Place() string {
	return t.place
}

// Hint returns a hint message for logging with given stage.
func (t TimeoutError) Hint() string {
	hint := ""

	switch t.place {
	case consts.SetupFn:
		hint = "You can increase the time limit via the setupTimeout option"
	case consts.TeardownFn:
		hint = "You can increase the time limit via the teardownTimeout option"
	}
	return hint
}

// ExitCode returns the exit code of a setup or teardown timeout.
func (t TimeoutError) ExitCode() exitcodes.ExitCode {
	code := exitcodes.GenericTimeout
	switch t.place {
	case consts.SetupFn:
		code = exitcodes.SetupTimeout
	case consts.TeardownFn:
		code = exitcodes.TeardownTimeout
	}
	return code
}
