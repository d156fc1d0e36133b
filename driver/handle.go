package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the connection state of a Handle.
type State uint8

// Possible handle states.
const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "open"
}

// Handle is a connection-like object created by Open. A Handle created in
// setup() is shared by reference with every VU, so all of its methods are
// safe for concurrent use.
type Handle struct {
	driverName string
	conn       Conn

	mu     sync.RWMutex
	closed bool
}

// Open validates that module implements the driver capability set and
// connects to it. Only the first of opts is used.
func Open(ctx context.Context, module interface{}, opts ...Options) (*Handle, error) {
	drv, ok := module.(Driver)
	if !ok || drv == nil {
		return nil, &DriverError{
			Kind: InvalidDriver,
			Err:  fmt.Errorf("%T does not implement the driver capability set", module),
		}
	}

	var options Options
	if len(opts) > 0 {
		options = opts[0]
	}

	name := NameOf(drv)
	conn, err := drv.Connect(ctx, options)
	if err != nil {
		return nil, wrapError(ConnectionError, name, err)
	}
	if conn == nil {
		return nil, &DriverError{Kind: ConnectionError, Driver: name, Err: errors.New("driver returned no connection")}
	}

	return &Handle{driverName: name, conn: conn}, nil
}

// State returns the current connection state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return StateClosed
	}
	return StateOpen
}

// DriverName returns the name of the driver behind the handle, if known.
func (h *Handle) DriverName() string {
	return h.driverName
}

// Exec is ExecContext with a background context.
func (h *Handle) Exec(statement string, args ...interface{}) (ExecResult, error) {
	return h.ExecContext(context.Background(), statement, args...)
}

// ExecContext runs a side-effecting statement, like DDL or DML.
func (h *Handle) ExecContext(ctx context.Context, statement string, args ...interface{}) (ExecResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ExecResult{}, h.closedError()
	}

	res, err := h.conn.Exec(ctx, statement, args...)
	if err != nil {
		return ExecResult{}, wrapError(QueryError, h.driverName, err)
	}
	return res, nil
}

// Query is QueryContext with a background context.
func (h *Handle) Query(statement string, args ...interface{}) (*Rows, error) {
	return h.QueryContext(context.Background(), statement, args...)
}

// QueryContext runs a read statement. The returned Rows are a finite,
// single-pass sequence.
func (h *Handle) QueryContext(ctx context.Context, statement string, args ...interface{}) (*Rows, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, h.closedError()
	}

	cursor, err := h.conn.Query(ctx, statement, args...)
	if err != nil {
		return nil, wrapError(QueryError, h.driverName, err)
	}
	return newRows(cursor, h.driverName)
}

// Close releases the underlying connection. Only the first call reaches the
// driver; later calls are no-ops that return nil.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return wrapError(ConnectionError, h.driverName, h.conn.Close())
}

func (h *Handle) closedError() error {
	return &DriverError{Kind: ConnectionError, Driver: h.driverName, Err: ErrHandleClosed}
}
