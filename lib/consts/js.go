// Package consts houses some constants needed across k6x
package consts

// Lifecycle export names
const (
	DefaultFn  = "default"
	SetupFn    = "setup"
	TeardownFn = "teardown"
)
