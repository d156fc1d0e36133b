package js

import (
	"context"

	"github.com/dop251/goja"
)

// moduleVU is what extension modules see of the VU that requires them.
type moduleVU struct {
	ctx     context.Context
	runtime *goja.Runtime
}

func (m *moduleVU) Context() context.Context {
	return m.ctx
}

func (m *moduleVU) Runtime() *goja.Runtime {
	return m.runtime
}
