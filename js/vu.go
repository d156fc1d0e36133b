package js

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/lib"
	"github.com/liuxd6825/k6x/lib/consts"
)

// VU is a virtual user running the default function of a script in its own
// runtime.
type VU struct {
	*BundleInstance

	id     uint64
	logger logrus.FieldLogger
}

var _ lib.VU = &VU{}

// ID returns the unique ID of the VU.
func (u *VU) ID() uint64 {
	return u.id
}

// RunOnce runs the default function once, with a fresh copy of the setup
// data.
func (u *VU) RunOnce(ctx context.Context, vuCtx *lib.VUContext) error {
	if err := u.Runtime.Set("__ITER", vuCtx.Iteration); err != nil {
		return err
	}
	data := copySetupData(u.Runtime, vuCtx.SetupData)
	_, err := runFn(ctx, u.logger, u.BundleInstance, consts.DefaultFn, data)
	return err
}

// runFn calls the exported function name of bi. The runtime is interrupted
// if ctx is done before the function returns.
func runFn(
	ctx context.Context, logger logrus.FieldLogger, bi *BundleInstance, name string, args ...goja.Value,
) (v goja.Value, err error) {
	fn, ok := bi.exports[name]
	if !ok {
		return goja.Undefined(), nil
	}

	bi.vu.ctx = ctx
	rt := bi.Runtime

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
		rt.ClearInterrupt()
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("a panic occurred in %s(): %v", name, r)
			logger.WithField("stack", string(debug.Stack())).Error(err)
		}
	}()

	v, err = fn(goja.Undefined(), args...)
	if err != nil {
		return nil, wrapScriptError(err)
	}
	return v, nil
}
