// Package driver defines the contract that pluggable resource drivers (SQL
// backends and the like) implement, and the Handle type that scripts use to
// talk to them.
//
// A driver is registered as an extension export (usually under a
// "driver/<name>" subpath) and turned into a connection-like Handle by Open.
// Handles are safe for concurrent use by many VUs; the driver implementation
// is responsible for any internal synchronization or connection pooling.
package driver

import (
	"context"

	"gopkg.in/guregu/null.v3"
)

// Driver is the capability a driver module exposes: it creates connections.
type Driver interface {
	// Connect returns a new, open connection. It must not return a closed
	// connection.
	Connect(ctx context.Context, opts Options) (Conn, error)
}

// Conn is an open connection produced by a Driver. All methods must be safe
// for concurrent use.
type Conn interface {
	// Exec runs a side-effecting statement. Arguments are passed to the
	// backend in order; placeholder syntax ($1, $2, ...) is backend defined.
	Exec(ctx context.Context, statement string, args ...interface{}) (ExecResult, error)
	// Query runs a read statement and returns a cursor over its results.
	Query(ctx context.Context, statement string, args ...interface{}) (Cursor, error)
	// Close releases the connection. It is called at most once by Handle.
	Close() error
}

// Cursor is the lazy result of Conn.Query.
type Cursor interface {
	Columns() ([]string, error)
	// Next advances to the next row, filling dest (len(dest) == len(Columns())).
	// It returns false when the results are exhausted or an error occurred.
	Next(dest []interface{}) bool
	Err() error
	Close() error
}

// Named is optionally implemented by drivers to provide a name for
// diagnostics.
type Named interface {
	DriverName() string
}

// Options are the optional parameters of Open.
type Options struct {
	// DSN is the backend specific connection string.
	DSN string `js:"dsn" json:"dsn"`
	// Params holds additional driver specific settings.
	Params map[string]interface{} `js:"params" json:"params"`
}

// ExecResult describes the effect of an Exec call. Backends that cannot
// report a value leave it invalid.
type ExecResult struct {
	RowsAffected null.Int `js:"rowsAffected" json:"rowsAffected"`
	LastInsertID null.Int `js:"lastInsertId" json:"lastInsertId"`
}

// NameOf returns the diagnostic name of d.
func NameOf(d interface{}) string {
	if n, ok := d.(Named); ok {
		return n.DriverName()
	}
	return ""
}
