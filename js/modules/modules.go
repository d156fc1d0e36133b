// Package modules binds the extension modules a script imports to the exports
// of the resolved extensions.
package modules

import (
	"context"

	"github.com/dop251/goja"
)

// Module is the interface extension exports implement when they need access
// to the VU importing them. Other exports are exposed to scripts as they are.
type Module interface {
	// NewModuleInstance will get modules.VU that should provide the module with a way to interact with the VU
	// This method will be called for *each* VU that requires the module and should return an unique instance for each call
	NewModuleInstance(VU) Instance
}

// Instance is what a module needs to return
type Instance interface {
	Exports() Exports
}

// VU gives access to the currently executing VU to a module Instance
type VU interface {
	// Context return the context.Context about the current VU
	Context() context.Context

	// Runtime returns the goja.Runtime for the current VU
	Runtime() *goja.Runtime
}

// Exports is representation of ESM exports of a module
type Exports struct {
	// Default is what will be the `default` export of a module
	Default interface{}
	// Named is the named exports of a module
	Named map[string]interface{}
}

func toESModuleExports(exp Exports) interface{} {
	if exp.Named == nil {
		return exp.Default
	}
	if exp.Default == nil {
		return exp.Named
	}

	result := make(map[string]interface{}, len(exp.Named)+2)

	for k, v := range exp.Named {
		result[k] = v
	}
	result["default"] = exp.Default
	// This is to interop with any code that is transpiled by Babel or any similar tool.
	result["__esModule"] = true

	return result
}
