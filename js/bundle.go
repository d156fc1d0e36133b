// Package js runs CommonJS test scripts on goja. Every VU gets its own
// runtime; setup and teardown share one more.
package js

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/js/modules"
	"github.com/liuxd6825/k6x/lib"
	"github.com/liuxd6825/k6x/lib/consts"
	"github.com/liuxd6825/k6x/loader"
)

// A Bundle is a compiled script together with the namespace its imports
// resolve through. You can use it to produce identical BundleInstances.
type Bundle struct {
	Filename string
	Source   string
	Program  *goja.Program

	namespace *modules.Namespace
	env       map[string]string

	// names of the exported functions
	exports map[string]struct{}
}

// A BundleInstance is a self-contained instance of a Bundle.
type BundleInstance struct {
	Runtime *goja.Runtime

	vu      *moduleVU
	exports map[string]goja.Callable
}

// NewBundle compiles the script and runs it once in a throwaway runtime to
// validate its exports.
func NewBundle(
	logger logrus.FieldLogger, src *loader.SourceData, ns *modules.Namespace, env map[string]string,
) (*Bundle, error) {
	filename := src.URL.String()
	code := string(src.Data)
	pgm, err := goja.Compile(filename, code, true)
	if err != nil {
		return nil, errext.WithExitCodeIfNone(fmt.Errorf("couldn't compile %s: %w", filename, err),
			exitcodes.ScriptException)
	}

	b := &Bundle{
		Filename:  filename,
		Source:    code,
		Program:   pgm,
		namespace: ns,
		env:       env,
		exports:   make(map[string]struct{}),
	}

	bi, err := b.Instantiate(context.Background(), logger, 0)
	if err != nil {
		return nil, err
	}
	if err := b.getExports(bi.Runtime); err != nil {
		return nil, err
	}
	return b, nil
}

// getExports validates and records the exported lifecycle functions.
func (b *Bundle) getExports(rt *goja.Runtime) error {
	exports := moduleExports(rt)
	if exports == nil {
		return errors.New("exports must be an object")
	}

	for _, k := range exports.Keys() {
		v := exports.Get(k)
		if v == nil || goja.IsUndefined(v) {
			continue
		}
		if _, ok := goja.AssertFunction(v); ok {
			b.exports[k] = struct{}{}
			continue
		}
		switch k {
		case consts.DefaultFn, consts.SetupFn, consts.TeardownFn:
			return fmt.Errorf("exported '%s' must be a function", k)
		}
	}

	if _, ok := b.exports[consts.DefaultFn]; !ok {
		return errext.WithAbortReasonIfNone(
			errext.WithExitCodeIfNone(fmt.Errorf("%s doesn't export a %s function", b.Filename, consts.DefaultFn),
				exitcodes.InvalidConfig),
			errext.AbortedByConfig)
	}
	return nil
}

// IsExported reports whether the script exports a function with the name.
func (b *Bundle) IsExported(name string) bool {
	_, ok := b.exports[name]
	return ok
}

// Instantiate creates a new runtime from this bundle.
func (b *Bundle) Instantiate(ctx context.Context, logger logrus.FieldLogger, vuID uint64) (*BundleInstance, error) {
	rt := goja.New()
	vu := &moduleVU{ctx: ctx, runtime: rt}
	if err := b.instantiate(logger, vu, vuID); err != nil {
		return nil, err
	}

	bi := &BundleInstance{
		Runtime: rt,
		vu:      vu,
		exports: make(map[string]goja.Callable, len(b.exports)),
	}
	exports := moduleExports(rt)
	for k := range b.exports {
		fn, _ := goja.AssertFunction(exports.Get(k))
		bi.exports[k] = fn
	}
	return bi, nil
}

// Instantiates the bundle into an existing runtime. Not public because it also messes with a bunch
// of other things, will potentially thrash data and makes a mess in it if the operation fails.
func (b *Bundle) instantiate(logger logrus.FieldLogger, vu *moduleVU, vuID uint64) error {
	rt := vu.runtime
	rt.SetParserOptions(parser.WithDisableSourceMaps)
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("js", true))

	exports := rt.NewObject()
	if err := defineLifecycleExports(rt, exports); err != nil {
		return err
	}
	module := rt.NewObject()
	_ = module.Set("exports", exports)

	env := make(map[string]string, len(b.env))
	for key, value := range b.env {
		env[key] = value
	}

	ms := modules.NewModuleSystem(b.namespace, vu)
	for name, value := range map[string]interface{}{
		"exports": exports,
		"module":  module,
		"__ENV":   env,
		"__VU":    vuID,
		"__ITER":  0,
		"console": newConsole(logger),
		"require": func(specifier string) goja.Value {
			v, err := ms.Require(specifier)
			if err != nil {
				panic(rt.NewGoError(err))
			}
			return v
		},
	} {
		if err := rt.Set(name, value); err != nil {
			return err
		}
	}

	if _, err := rt.RunProgram(b.Program); err != nil {
		return wrapScriptError(err)
	}
	return nil
}

// defineLifecycleExports turns the lifecycle names of exports into properties
// that can be assigned only once, so that a script which defines setup,
// default or teardown twice (directly or through re-exports) fails to load
// instead of silently running the last definition.
func defineLifecycleExports(rt *goja.Runtime, exports *goja.Object) error {
	for _, name := range []string{consts.SetupFn, consts.DefaultFn, consts.TeardownFn} {
		name := name
		var value goja.Value
		getter := rt.ToValue(func(goja.FunctionCall) goja.Value {
			if value == nil {
				return goja.Undefined()
			}
			return value
		})
		setter := rt.ToValue(func(call goja.FunctionCall) goja.Value {
			v := call.Argument(0)
			if value != nil && !value.StrictEquals(v) {
				panic(rt.NewGoError(lib.NewLifecycleConflictError(name)))
			}
			value = v
			return goja.Undefined()
		})
		if err := exports.DefineAccessorProperty(name, getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}
	return nil
}

func moduleExports(rt *goja.Runtime) *goja.Object {
	module := rt.Get("module")
	if module == nil || goja.IsNull(module) || goja.IsUndefined(module) {
		return nil
	}
	exports := module.ToObject(rt).Get("exports")
	if exports == nil || goja.IsNull(exports) || goja.IsUndefined(exports) {
		return nil
	}
	return exports.ToObject(rt)
}

// scriptException wraps an exception thrown by the script, keeping its
// stack trace for the logs.
type scriptException struct {
	inner *goja.Exception
}

var (
	_ errext.Exception   = &scriptException{}
	_ errext.HasExitCode = &scriptException{}
	_ errext.HasHint     = &scriptException{}
)

func (s *scriptException) Error() string {
	// this calls String instead of error so that by default if it's printed to
	// print the stacktrace
	return s.inner.String()
}

func (s *scriptException) StackTrace() string {
	return s.inner.String()
}

func (s *scriptException) Unwrap() error {
	return s.inner
}

func (s *scriptException) Hint() string {
	return "script exception"
}

func (s *scriptException) AbortReason() errext.AbortReason {
	return errext.AbortedByScriptError
}

func (s *scriptException) ExitCode() exitcodes.ExitCode {
	return exitcodes.ScriptException
}

// wrapScriptError turns errors raised inside the runtime into errors the
// rest of k6x understands. Go errors thrown through the runtime are unwrapped
// so that their types survive.
func wrapScriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if e, ok := interrupted.Value().(error); ok {
			return e
		}
		return fmt.Errorf("script interrupted: %v", interrupted.Value())
	}

	var exception *goja.Exception
	if !errors.As(err, &exception) {
		return err
	}
	if gerr := goErrorOf(exception); gerr != nil {
		return gerr
	}
	return &scriptException{inner: exception}
}

// goErrorOf returns the Go error an exception was raised with, if any.
func goErrorOf(exception *goja.Exception) error {
	obj, ok := exception.Value().(*goja.Object)
	if !ok {
		return nil
	}
	value := obj.Get("value")
	if value == nil {
		return nil
	}
	gerr, _ := value.Export().(error)
	return gerr
}
