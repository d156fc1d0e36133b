// Package sql is the script facing root module of the sql extension:
//
//	const sql = require("k6/x/sql");
//	const ramsql = require("k6/x/sql/driver/ramsql");
//
//	const db = sql.open(ramsql, { dsn: "roster" });
//	for (const row of db.query("SELECT name FROM roster")) {
//		console.log(row.name);
//	}
//
// Query results are single-pass iterables of plain objects, one property per
// column in column order.
package sql

import (
	"github.com/dop251/goja"

	"github.com/liuxd6825/k6x/driver"
	"github.com/liuxd6825/k6x/js/modules"
)

type (
	// RootModule is the global module instance that will create module
	// instances for each VU.
	RootModule struct{}

	// SQL represents an instance of the module for every VU.
	SQL struct {
		vu modules.VU
	}

	// DB is what open() returns. It is a Go value, so when setup() returns it
	// every VU shares the same handle.
	DB struct {
		handle *driver.Handle
	}
)

var (
	_ modules.Module   = &RootModule{}
	_ modules.Instance = &SQL{}
)

// New returns a pointer to a new RootModule instance.
func New() *RootModule {
	return &RootModule{}
}

// NewModuleInstance implements the modules.Module interface to return
// a new instance for each VU.
func (*RootModule) NewModuleInstance(vu modules.VU) modules.Instance {
	return &SQL{vu: vu}
}

// Exports returns the exports of the module.
func (s *SQL) Exports() modules.Exports {
	return modules.Exports{
		Named: map[string]interface{}{
			"open": s.Open,
		},
	}
}

// Open connects to module, which must be a driver export, and returns the
// handle wrapped for scripts. Connecting is bound by the context of the
// calling VU, so a setup() timeout also stops a hanging connect.
func (s *SQL) Open(module interface{}, opts ...driver.Options) (*DB, error) {
	h, err := driver.Open(s.vu.Context(), module, opts...)
	if err != nil {
		return nil, err
	}
	return &DB{handle: h}, nil
}

// Handle returns the driver handle behind db.
func (db *DB) Handle() *driver.Handle {
	return db.handle
}

// Exec runs a side-effecting statement.
func (db *DB) Exec(statement string, args ...interface{}) (driver.ExecResult, error) {
	return db.handle.Exec(statement, args...)
}

// Query runs a read statement and returns its results as an iterable of the
// runtime it is called from.
func (db *DB) Query(call goja.FunctionCall, rt *goja.Runtime) goja.Value {
	statement := call.Argument(0).String()
	var args []interface{}
	if len(call.Arguments) > 1 {
		for _, arg := range call.Arguments[1:] {
			args = append(args, arg.Export())
		}
	}

	rows, err := db.handle.Query(statement, args...)
	if err != nil {
		panic(rt.NewGoError(err))
	}
	return newResults(rt, rows)
}

// Close releases the handle. Closing twice is a no-op.
func (db *DB) Close() error {
	return db.handle.Close()
}

// State returns "open" or "closed".
func (db *DB) State() string {
	return db.handle.State().String()
}
