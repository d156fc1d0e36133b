// Package drivertest provides a scripted in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/liuxd6825/k6x/driver"
)

// Result is what a QueryFunc returns.
type Result struct {
	Columns []string
	Rows    [][]interface{}
	// FailAt makes the cursor stop with Err after FailAt rows were read.
	// When Err is nil the whole result is returned.
	FailAt int
	Err    error
}

// Driver is a driver.Driver whose behaviour is defined by plain functions.
// A nil ExecFunc succeeds without effect, a nil QueryFunc returns no rows.
type Driver struct {
	Name      string
	ExecFunc  func(ctx context.Context, statement string, args []interface{}) (driver.ExecResult, error)
	QueryFunc func(ctx context.Context, statement string, args []interface{}) (*Result, error)

	connects atomic.Int64
	closes   atomic.Int64
	mu       sync.Mutex
	execs    []string
}

var _ driver.Driver = &Driver{}

// DriverName implements driver.Named.
func (d *Driver) DriverName() string {
	return d.Name
}

// Connect implements driver.Driver.
func (d *Driver) Connect(_ context.Context, _ driver.Options) (driver.Conn, error) {
	d.connects.Add(1)
	return &conn{d: d}, nil
}

// Connects returns how many connections were opened.
func (d *Driver) Connects() int64 {
	return d.connects.Load()
}

// Closes returns how many connections were closed.
func (d *Driver) Closes() int64 {
	return d.closes.Load()
}

// Statements returns every statement passed to Exec, in call order.
func (d *Driver) Statements() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.execs...)
}

type conn struct {
	d *Driver
}

func (c *conn) Exec(ctx context.Context, statement string, args ...interface{}) (driver.ExecResult, error) {
	c.d.mu.Lock()
	c.d.execs = append(c.d.execs, statement)
	c.d.mu.Unlock()

	if c.d.ExecFunc == nil {
		return driver.ExecResult{}, nil
	}
	return c.d.ExecFunc(ctx, statement, args)
}

func (c *conn) Query(ctx context.Context, statement string, args ...interface{}) (driver.Cursor, error) {
	if c.d.QueryFunc == nil {
		return &cursor{res: &Result{}}, nil
	}
	res, err := c.d.QueryFunc(ctx, statement, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("no result")
	}
	return &cursor{res: res}, nil
}

func (c *conn) Close() error {
	c.d.closes.Add(1)
	return nil
}

type cursor struct {
	res    *Result
	pos    int
	err    error
	closed bool
}

func (c *cursor) Columns() ([]string, error) {
	return c.res.Columns, nil
}

func (c *cursor) Next(dest []interface{}) bool {
	if c.closed || c.err != nil {
		return false
	}
	if c.res.Err != nil && c.pos >= c.res.FailAt {
		c.err = c.res.Err
		return false
	}
	if c.pos >= len(c.res.Rows) {
		return false
	}
	copy(dest, c.res.Rows[c.pos])
	c.pos++
	return true
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}
