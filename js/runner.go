package js

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/js/modules"
	"github.com/liuxd6825/k6x/lib"
	"github.com/liuxd6825/k6x/lib/consts"
	"github.com/liuxd6825/k6x/loader"
)

// Runner implements lib.Runner for a script.
type Runner struct {
	Bundle *Bundle
	Logger logrus.FieldLogger

	// setup() and teardown() share a runtime, so that teardown gets the
	// very value setup returned.
	setupMu       sync.Mutex
	setupInstance *BundleInstance
	setupData     goja.Value
}

var _ lib.Runner = &Runner{}

// New returns a new Runner for the provided source.
func New(
	logger logrus.FieldLogger, src *loader.SourceData, ns *modules.Namespace, env map[string]string,
) (*Runner, error) {
	bundle, err := NewBundle(logger, src, ns, env)
	if err != nil {
		return nil, err
	}
	return NewFromBundle(logger, bundle), nil
}

// NewFromBundle returns a new Runner from the provided Bundle.
func NewFromBundle(logger logrus.FieldLogger, b *Bundle) *Runner {
	return &Runner{Bundle: b, Logger: logger}
}

// IsExecutable returns whether the given name is an exported and
// executable function in the script.
func (r *Runner) IsExecutable(name string) bool {
	return r.Bundle.IsExported(name)
}

// NewVU returns a new initialized VU.
func (r *Runner) NewVU(ctx context.Context, id uint64, logger logrus.FieldLogger) (lib.VU, error) {
	if logger == nil {
		logger = r.Logger
	}
	bi, err := r.Bundle.Instantiate(ctx, logger, id)
	if err != nil {
		return nil, err
	}
	return &VU{BundleInstance: bi, id: id, logger: logger}, nil
}

func (r *Runner) getSetupInstance(ctx context.Context) (*BundleInstance, error) {
	if r.setupInstance != nil {
		return r.setupInstance, nil
	}
	bi, err := r.Bundle.Instantiate(ctx, r.Logger.WithField("source", "setup"), 0)
	if err != nil {
		return nil, err
	}
	r.setupInstance = bi
	return bi, nil
}

// Setup runs the setup function if there is one and returns its result
// exported to Go.
func (r *Runner) Setup(ctx context.Context, _ *lib.Context) (interface{}, error) {
	r.setupMu.Lock()
	defer r.setupMu.Unlock()

	bi, err := r.getSetupInstance(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't instantiate the script for %s(): %w", consts.SetupFn, err)
	}
	v, err := runFn(ctx, r.Logger, bi, consts.SetupFn)
	if err != nil {
		return nil, err
	}
	r.setupData = v
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil //nolint:nilnil
	}
	return v.Export(), nil
}

// Teardown runs the teardown function if there is one, passing it the
// result of setup.
func (r *Runner) Teardown(ctx context.Context, lc *lib.Context) error {
	r.setupMu.Lock()
	defer r.setupMu.Unlock()

	bi, err := r.getSetupInstance(ctx)
	if err != nil {
		return fmt.Errorf("couldn't instantiate the script for %s(): %w", consts.TeardownFn, err)
	}
	data := r.setupData
	if data == nil {
		data = copySetupData(bi.Runtime, lc.SetupData)
	}
	_, err = runFn(ctx, r.Logger, bi, consts.TeardownFn, data)
	return err
}

// copySetupData converts the exported result of setup into a value of rt.
// Plain objects and arrays are copied, so that a VU can't change what other
// VUs see; Go values, like driver handles, are shared by reference.
func copySetupData(rt *goja.Runtime, data interface{}) goja.Value {
	switch v := data.(type) {
	case nil:
		return goja.Undefined()
	case map[string]interface{}:
		obj := rt.NewObject()
		for key, value := range v {
			_ = obj.Set(key, copySetupData(rt, value))
		}
		return obj
	case []interface{}:
		items := make([]interface{}, len(v))
		for i, value := range v {
			items[i] = copySetupData(rt, value)
		}
		return rt.NewArray(items...)
	default:
		return rt.ToValue(v)
	}
}
