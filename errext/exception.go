// Package errext extends plain Go errors with the metadata the command line
// needs to report them: exit codes, abort reasons, hints and script stack
// traces.
package errext

// Exception is an error thrown by script code. Its stack trace is what gets
// logged instead of the bare message.
type Exception interface {
	error
	HasAbortReason
	StackTrace() string
}
