package errext

import "errors"

// AbortReason is used to signal which lifecycle phase or event caused a test
// run to end up in the Aborted state.
type AbortReason uint8

// Possible abort reasons. The zero value means that the run wasn't aborted.
const (
	AbortedByDependency AbortReason = iota + 1
	AbortedByConfig
	AbortedByScriptError
	AbortedBySetupError
	AbortedByTeardownError
	AbortedByUser
)

func (r AbortReason) String() string {
	switch r {
	case AbortedByDependency:
		return "unresolved dependency"
	case AbortedByConfig:
		return "invalid configuration"
	case AbortedByScriptError:
		return "script error"
	case AbortedBySetupError:
		return "setup failure"
	case AbortedByTeardownError:
		return "teardown failure"
	case AbortedByUser:
		return "cancellation"
	default:
		return "not aborted"
	}
}

// HasAbortReason is a wrapper around an error with an attached abort reason.
type HasAbortReason interface {
	error
	AbortReason() AbortReason
}

// WithAbortReasonIfNone can attach an abort reason to the given error, if it
// doesn't have one already. It won't do anything if the error already had an
// abort reason attached. Similarly, if there is no error (i.e. the given error
// is nil), it also won't do anything.
func WithAbortReasonIfNone(err error, abortReason AbortReason) error {
	if err == nil {
		return nil // No error, do nothing
	}
	var arerr HasAbortReason
	if errors.As(err, &arerr) {
		return err // The given error already has an abort reason, do nothing
	}
	return withAbortReason{err, abortReason}
}

type withAbortReason struct {
	error
	abortReason AbortReason
}

func (ar withAbortReason) Unwrap() error {
	return ar.error
}

func (ar withAbortReason) AbortReason() AbortReason {
	return ar.abortReason
}

var _ HasAbortReason = withAbortReason{}

// GetAbortReason returns the abort reason attached to err, or 0 if none.
func GetAbortReason(err error) AbortReason {
	var arerr HasAbortReason
	if errors.As(err, &arerr) {
		return arerr.AbortReason()
	}
	return 0
}
