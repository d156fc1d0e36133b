package errext

import "errors"

// HasHint is an error that carries a suggestion for the user, printed next to
// the error message.
type HasHint interface {
	error
	Hint() string
}

// WithHint attaches hint to err. A hint already present deeper in the chain is
// kept in parentheses after the new one. A nil err stays nil.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return withHint{error: err, hint: hint}
}

type withHint struct {
	error
	hint string
}

var _ HasHint = withHint{}

func (wh withHint) Unwrap() error { return wh.error }

func (wh withHint) Hint() string {
	var inner HasHint
	if errors.As(wh.error, &inner) {
		return wh.hint + " (" + inner.Hint() + ")"
	}
	return wh.hint
}
