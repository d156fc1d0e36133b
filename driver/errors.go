package driver

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DriverError.
type ErrorKind uint8

// Possible error kinds.
const (
	InvalidDriver ErrorKind = iota + 1
	ConnectionError
	QueryError
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidDriver:
		return "invalid driver"
	case ConnectionError:
		return "connection error"
	case QueryError:
		return "query error"
	default:
		return "unknown driver error"
	}
}

// ErrHandleClosed is wrapped by the ConnectionError returned for calls on a
// closed Handle.
var ErrHandleClosed = errors.New("handle is closed")

// DriverError is returned by every failing driver operation.
type DriverError struct {
	Kind   ErrorKind
	Driver string
	Err    error
}

func (e *DriverError) Error() string {
	if e.Driver == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Driver, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a DriverError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var derr *DriverError
	return errors.As(err, &derr) && derr.Kind == kind
}

func wrapError(kind ErrorKind, driverName string, err error) error {
	if err == nil {
		return nil
	}
	var derr *DriverError
	if errors.As(err, &derr) {
		return err
	}
	return &DriverError{Kind: kind, Driver: driverName, Err: err}
}
