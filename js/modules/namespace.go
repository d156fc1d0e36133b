package modules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/ext"
)

// ModuleResolutionError is returned for a specifier that doesn't name an
// export of a resolved extension.
type ModuleResolutionError struct {
	Specifier string
	Reason    string
}

var (
	_ errext.HasExitCode    = &ModuleResolutionError{}
	_ errext.HasAbortReason = &ModuleResolutionError{}
)

func (e *ModuleResolutionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unknown module %q", e.Specifier)
	}
	return fmt.Sprintf("unknown module %q: %s", e.Specifier, e.Reason)
}

// ExitCode implements errext.HasExitCode.
func (e *ModuleResolutionError) ExitCode() exitcodes.ExitCode {
	return exitcodes.ScriptDependencyError
}

// AbortReason implements errext.HasAbortReason.
func (e *ModuleResolutionError) AbortReason() errext.AbortReason {
	return errext.AbortedByDependency
}

// ParseSpecifier splits an extension module specifier of the form
// k6/x/<name>[/<subpath>] into the extension name and the export subpath.
func ParseSpecifier(specifier string) (name, subpath string, err error) {
	rest, ok := strings.CutPrefix(specifier, ext.ModulePrefix)
	if !ok {
		return "", "", &ModuleResolutionError{Specifier: specifier, Reason: "not an extension module"}
	}
	name, subpath, _ = strings.Cut(rest, "/")
	if name == "" {
		return "", "", &ModuleResolutionError{Specifier: specifier, Reason: "missing extension name"}
	}
	return name, ext.CleanSubpath(subpath), nil
}

// Namespace maps module specifiers to the exports of resolved extensions. It
// is built once per run and read-only afterwards, so it is safe for concurrent
// use.
type Namespace struct {
	exports  map[string]interface{}
	versions map[string]string
}

// BuildNamespace binds every export of every resolved extension to its
// specifier. It doesn't instantiate anything.
func BuildNamespace(resolved ext.Resolved) *Namespace {
	ns := &Namespace{
		exports:  make(map[string]interface{}),
		versions: make(map[string]string, len(resolved)),
	}
	for name, re := range resolved {
		ns.versions[name] = re.Version.String()
		for subpath, mod := range re.Exports {
			ns.exports[specifierOf(name, subpath)] = mod
		}
	}
	return ns
}

func specifierOf(name, subpath string) string {
	if subpath == "" {
		return ext.ModulePrefix + name
	}
	return ext.ModulePrefix + name + "/" + subpath
}

// Require returns the export bound to specifier.
func (ns *Namespace) Require(specifier string) (interface{}, error) {
	name, subpath, err := ParseSpecifier(specifier)
	if err != nil {
		return nil, err
	}
	if _, ok := ns.versions[name]; !ok {
		return nil, &ModuleResolutionError{
			Specifier: specifier,
			Reason:    fmt.Sprintf("extension %q is not resolved", name),
		}
	}
	mod, ok := ns.exports[specifierOf(name, subpath)]
	if !ok {
		return nil, &ModuleResolutionError{
			Specifier: specifier,
			Reason:    fmt.Sprintf("extension %q has no export %q", name, subpath),
		}
	}
	return mod, nil
}

// Verify checks that every one of specifiers can be required.
func (ns *Namespace) Verify(specifiers []string) error {
	var errs *multierror.Error
	for _, s := range specifiers {
		if _, err := ns.Require(s); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs == nil {
		return nil
	}
	if len(errs.Errors) == 1 {
		return errs.Errors[0]
	}
	return errext.WithAbortReasonIfNone(
		errext.WithExitCodeIfNone(errs.ErrorOrNil(), exitcodes.ScriptDependencyError),
		errext.AbortedByDependency)
}

// Specifiers returns every bound specifier, sorted.
func (ns *Namespace) Specifiers() []string {
	specs := make([]string, 0, len(ns.exports))
	for s := range ns.exports {
		specs = append(specs, s)
	}
	sort.Strings(specs)
	return specs
}

// Version returns the resolved version of the named extension.
func (ns *Namespace) Version(name string) (string, bool) {
	v, ok := ns.versions[ext.NormalizeName(name)]
	return v, ok
}
