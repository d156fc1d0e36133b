// Package sqldb turns any database/sql driver into a driver.Driver, so that
// SQL backends registered with database/sql can be exported by extensions.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/k6x/driver"
)

// Driver connects to the database/sql driver registered under Name.
type Driver struct {
	name string
}

var _ driver.Driver = Driver{}

// New returns a driver.Driver for the database/sql driver named driverName.
func New(driverName string) Driver {
	return Driver{name: driverName}
}

// DriverName implements driver.Named.
func (d Driver) DriverName() string {
	return d.name
}

// Connect opens a *sql.DB pool and verifies it with a ping. The pool is what
// makes a single handle safe to share between VUs.
func (d Driver) Connect(ctx context.Context, opts driver.Options) (driver.Conn, error) {
	db, err := sql.Open(d.name, opts.DSN)
	if err != nil {
		return nil, err
	}
	if n, ok := opts.Params["maxOpenConns"]; ok {
		limit, err := toInt(n)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("invalid maxOpenConns: %w", err)
		}
		db.SetMaxOpenConns(limit)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &conn{db: db}, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

type conn struct {
	db *sql.DB
}

func (c *conn) Exec(ctx context.Context, statement string, args ...interface{}) (driver.ExecResult, error) {
	res, err := c.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return driver.ExecResult{}, err
	}

	var result driver.ExecResult
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = null.IntFrom(n)
	}
	if id, err := res.LastInsertId(); err == nil {
		result.LastInsertID = null.IntFrom(id)
	}
	return result, nil
}

func (c *conn) Query(ctx context.Context, statement string, args ...interface{}) (driver.Cursor, error) {
	rows, err := c.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	return &cursor{rows: rows}, nil
}

func (c *conn) Close() error {
	return c.db.Close()
}

type cursor struct {
	rows *sql.Rows
	err  error
}

func (c *cursor) Columns() ([]string, error) {
	return c.rows.Columns()
}

func (c *cursor) Next(dest []interface{}) bool {
	if !c.rows.Next() {
		return false
	}

	ptrs := make([]interface{}, len(dest))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = err
		return false
	}
	for i, v := range dest {
		if b, ok := v.([]byte); ok {
			dest[i] = string(b)
		}
	}
	return true
}

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *cursor) Close() error {
	return c.rows.Close()
}
