// Package exitcodes contains the constants representing possible k6x exit error codes.
//
//nolint:revive
package exitcodes

// ExitCode is just a type representing a process exit code for k6x
type ExitCode uint8

// list of exit codes used by k6x
const (
	SetupTimeout          ExitCode = 100
	TeardownTimeout       ExitCode = 101
	GenericTimeout        ExitCode = 102
	GenericEngine         ExitCode = 103
	InvalidConfig         ExitCode = 104
	ExternalAbort         ExitCode = 105
	ScriptException       ExitCode = 107
	ScriptAborted         ExitCode = 108
	ScriptDependencyError ExitCode = 109 // directives, unknown extensions, version constraints, imports
	GoPanic               ExitCode = 110
)
