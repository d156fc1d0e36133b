package ext

import (
	"fmt"
	"strings"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
)

// UnknownExtensionError is returned when a script requires an extension that
// isn't in the registry.
type UnknownExtensionError struct {
	Name      string
	Available []string
}

var (
	_ errext.HasExitCode    = &UnknownExtensionError{}
	_ errext.HasHint        = &UnknownExtensionError{}
	_ errext.HasAbortReason = &UnknownExtensionError{}
)

func (e *UnknownExtensionError) Error() string {
	return fmt.Sprintf("unknown extension %q", e.Name)
}

// Hint lists the extensions the registry does know about.
func (e *UnknownExtensionError) Hint() string {
	if len(e.Available) == 0 {
		return "no extensions are registered in this build"
	}
	return "registered extensions: " + strings.Join(e.Available, ", ")
}

// ExitCode implements errext.HasExitCode.
func (e *UnknownExtensionError) ExitCode() exitcodes.ExitCode {
	return exitcodes.ScriptDependencyError
}

// AbortReason implements errext.HasAbortReason.
func (e *UnknownExtensionError) AbortReason() errext.AbortReason {
	return errext.AbortedByDependency
}

// VersionConstraintError is returned when no version satisfies a constraint.
// Available is nil when the constraints of a requirement contradict each other.
type VersionConstraintError struct {
	Name       string
	Constraint string
	Available  []string
}

var (
	_ errext.HasExitCode    = &VersionConstraintError{}
	_ errext.HasAbortReason = &VersionConstraintError{}
)

func (e *VersionConstraintError) Error() string {
	if e.Available == nil {
		return fmt.Sprintf("version constraints of %q can never be satisfied: %s", e.Name, e.Constraint)
	}
	return fmt.Sprintf("no version of %q satisfies %q (available: %s)",
		e.Name, e.Constraint, strings.Join(e.Available, ", "))
}

// ExitCode implements errext.HasExitCode.
func (e *VersionConstraintError) ExitCode() exitcodes.ExitCode {
	return exitcodes.ScriptDependencyError
}

// AbortReason implements errext.HasAbortReason.
func (e *VersionConstraintError) AbortReason() errext.AbortReason {
	return errext.AbortedByDependency
}
