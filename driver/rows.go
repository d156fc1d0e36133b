package driver

import (
	"fmt"
)

// Row is an ordered mapping from column name to value. Column names are
// unique within a row.
type Row struct {
	columns []string
	values  []interface{}
}

// NewRow pairs columns with values.
func NewRow(columns []string, values []interface{}) (Row, error) {
	if len(columns) != len(values) {
		return Row{}, fmt.Errorf("got %d values for %d columns", len(values), len(columns))
	}
	if err := checkColumns(columns); err != nil {
		return Row{}, err
	}
	return Row{columns: columns, values: values}, nil
}

func checkColumns(columns []string) error {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			return fmt.Errorf("duplicate column name %q", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.columns)
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Values returns the values in column order.
func (r Row) Values() []interface{} {
	return append([]interface{}(nil), r.values...)
}

// Lookup returns the value of the named column.
func (r Row) Lookup(column string) (interface{}, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// Get returns the value of the named column, or nil.
func (r Row) Get(column string) interface{} {
	v, _ := r.Lookup(column)
	return v
}

// Map returns the row as an unordered map.
func (r Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// Rows is the lazy result of a query. It can be consumed only once and is not
// safe for concurrent use; every Query call returns a new Rows.
type Rows struct {
	cursor     Cursor
	driverName string
	columns    []string

	current Row
	err     error
	done    bool
}

func newRows(cursor Cursor, driverName string) (*Rows, error) {
	columns, err := cursor.Columns()
	if err == nil {
		err = checkColumns(columns)
	}
	if err != nil {
		_ = cursor.Close()
		return nil, wrapError(QueryError, driverName, err)
	}
	return &Rows{cursor: cursor, driverName: driverName, columns: columns}, nil
}

// Columns returns the column names of the result.
func (r *Rows) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Next advances to the next row. It returns false once the rows are
// exhausted, closed or failed; Err tells the two apart.
func (r *Rows) Next() bool {
	if r.done {
		return false
	}

	dest := make([]interface{}, len(r.columns))
	if !r.cursor.Next(dest) {
		r.finish(r.cursor.Err())
		return false
	}

	r.current = Row{columns: r.columns, values: dest}
	return true
}

// Row returns the row Next advanced to.
func (r *Rows) Row() Row {
	return r.current
}

// Err returns the error, if any, that ended the iteration.
func (r *Rows) Err() error {
	return r.err
}

// Close stops the iteration early and releases the cursor.
func (r *Rows) Close() error {
	if r.done {
		return nil
	}
	r.finish(nil)
	return r.err
}

// Collect consumes the remaining rows.
func (r *Rows) Collect() ([]Row, error) {
	var result []Row
	for r.Next() {
		result = append(result, r.Row())
	}
	return result, r.Err()
}

func (r *Rows) finish(err error) {
	r.done = true
	r.current = Row{}
	closeErr := r.cursor.Close()
	if err == nil {
		err = closeErr
	}
	r.err = wrapError(QueryError, r.driverName, err)
}
