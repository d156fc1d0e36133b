package modules

import (
	"errors"

	"github.com/dop251/goja"
)

// ModuleSystem implements require() for one VU. Every specifier is
// instantiated at most once per VU.
type ModuleSystem struct {
	ns       *Namespace
	vu       VU
	required map[string]goja.Value
}

// NewModuleSystem returns a module system resolving through ns.
func NewModuleSystem(ns *Namespace, vu VU) *ModuleSystem {
	return &ModuleSystem{ns: ns, vu: vu, required: make(map[string]goja.Value)}
}

// Require is the actual call that implements require
func (ms *ModuleSystem) Require(specifier string) (goja.Value, error) {
	if specifier == "" {
		return nil, errors.New("require() can't be used with an empty specifier")
	}
	if v, ok := ms.required[specifier]; ok {
		return v, nil
	}

	mod, err := ms.ns.Require(specifier)
	if err != nil {
		return nil, err
	}

	rt := ms.vu.Runtime()
	var v goja.Value
	if m, ok := mod.(Module); ok {
		v = rt.ToValue(toESModuleExports(m.NewModuleInstance(ms.vu).Exports()))
	} else {
		v = rt.ToValue(mod)
	}
	ms.required[specifier] = v
	return v, nil
}
