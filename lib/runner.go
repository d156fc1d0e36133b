package lib

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/lib/consts"
)

// Namespace resolves the extension modules of a run.
type Namespace interface {
	Require(specifier string) (interface{}, error)
}

// Context is passed to setup and teardown.
type Context struct {
	RunID     string
	Namespace Namespace
	// SetupData is what setup returned; nil during setup.
	SetupData interface{}
	Logger    logrus.FieldLogger
}

// VUContext is passed to every iteration of a VU. It is discarded after the
// iteration returns.
type VUContext struct {
	VUID      uint64
	Iteration int64
	// SetupData is the value returned by setup, shared by all VUs.
	SetupData interface{}
	Namespace Namespace
	Logger    logrus.FieldLogger
}

// A Runner is a factory for VUs and the executor of the setup and teardown
// functions of a script.
type Runner interface {
	// IsExecutable reports whether the script defines the named lifecycle
	// function (consts.SetupFn, consts.DefaultFn or consts.TeardownFn).
	IsExecutable(name string) bool

	// Setup runs the setup function once and returns its result.
	Setup(ctx context.Context, lc *Context) (interface{}, error)

	// Teardown runs the teardown function once.
	Teardown(ctx context.Context, lc *Context) error

	// NewVU creates a new VU. As much as possible should be precomputed
	// here, so that starting iterations is cheap.
	NewVU(ctx context.Context, id uint64, logger logrus.FieldLogger) (VU, error)
}

// A VU is a Virtual User.
type VU interface {
	// ID returns the unique ID of the VU, starting from 1.
	ID() uint64

	// RunOnce runs the default function once. Iterations of one VU are
	// never run concurrently.
	RunOnce(ctx context.Context, vuCtx *VUContext) error
}

// ErrLifecycleConflict is returned when more than one setup, default or
// teardown function is defined for a single run.
var ErrLifecycleConflict = errors.New("lifecycle function defined more than once")

// Lifecycle is a set of lifecycle functions defined in Go.
type Lifecycle struct {
	Setup    func(ctx context.Context, lc *Context) (interface{}, error)
	Default  func(ctx context.Context, vu *VUContext) error
	Teardown func(ctx context.Context, lc *Context) error
}

// AggregateLifecycle combines lifecycle functions defined in different places,
// e.g. a setup and teardown shared by several tests with a local default
// function. Every function may be defined by at most one part.
func AggregateLifecycle(parts ...Lifecycle) (Lifecycle, error) {
	var result Lifecycle
	var conflicts []string
	for _, p := range parts {
		if p.Setup != nil {
			if result.Setup != nil {
				conflicts = append(conflicts, consts.SetupFn)
			}
			result.Setup = p.Setup
		}
		if p.Default != nil {
			if result.Default != nil {
				conflicts = append(conflicts, consts.DefaultFn)
			}
			result.Default = p.Default
		}
		if p.Teardown != nil {
			if result.Teardown != nil {
				conflicts = append(conflicts, consts.TeardownFn)
			}
			result.Teardown = p.Teardown
		}
	}
	if len(conflicts) > 0 {
		return Lifecycle{}, NewLifecycleConflictError(conflicts...)
	}
	return result, nil
}

// NewLifecycleConflictError returns an ErrLifecycleConflict for the named
// lifecycle functions. It is a configuration error.
func NewLifecycleConflictError(names ...string) error {
	return errext.WithAbortReasonIfNone(
		errext.WithExitCodeIfNone(
			fmt.Errorf("%w: %v", ErrLifecycleConflict, names), exitcodes.InvalidConfig),
		errext.AbortedByConfig)
}

type funcRunner struct {
	lc Lifecycle
}

var _ Runner = &funcRunner{}

// NewFuncRunner returns a Runner executing the given Go functions.
func NewFuncRunner(lc Lifecycle) Runner {
	return &funcRunner{lc: lc}
}

func (r *funcRunner) IsExecutable(name string) bool {
	switch name {
	case consts.SetupFn:
		return r.lc.Setup != nil
	case consts.DefaultFn:
		return r.lc.Default != nil
	case consts.TeardownFn:
		return r.lc.Teardown != nil
	default:
		return false
	}
}

func (r *funcRunner) Setup(ctx context.Context, lc *Context) (interface{}, error) {
	if r.lc.Setup == nil {
		return nil, nil //nolint:nilnil
	}
	return r.lc.Setup(ctx, lc)
}

func (r *funcRunner) Teardown(ctx context.Context, lc *Context) error {
	if r.lc.Teardown == nil {
		return nil
	}
	return r.lc.Teardown(ctx, lc)
}

func (r *funcRunner) NewVU(_ context.Context, id uint64, _ logrus.FieldLogger) (VU, error) {
	if r.lc.Default == nil {
		return nil, fmt.Errorf("no %s function defined", consts.DefaultFn)
	}
	return &funcVU{id: id, fn: r.lc.Default}, nil
}

type funcVU struct {
	id uint64
	fn func(ctx context.Context, vu *VUContext) error
}

func (vu *funcVU) ID() uint64 {
	return vu.id
}

func (vu *funcVU) RunOnce(ctx context.Context, vuCtx *VUContext) error {
	return vu.fn(ctx, vuCtx)
}
