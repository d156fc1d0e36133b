package sql

import (
	"github.com/dop251/goja"

	"github.com/liuxd6825/k6x/driver"
)

// newResults wraps rows into an object scripts can iterate with for...of.
// Rows are pulled from the driver as the iteration advances and can only be
// consumed once.
func newResults(rt *goja.Runtime, rows *driver.Rows) *goja.Object {
	columns := rows.Columns()
	names := make([]interface{}, len(columns))
	for i, c := range columns {
		names[i] = c
	}

	results := rt.NewObject()
	_ = results.Set("columns", rt.NewArray(names...))
	_ = results.Set("collect", func(goja.FunctionCall) goja.Value {
		var items []interface{}
		for rows.Next() {
			items = append(items, rowObject(rt, rows.Row()))
		}
		if err := rows.Err(); err != nil {
			panic(rt.NewGoError(err))
		}
		return rt.NewArray(items...)
	})
	_ = results.Set("close", func(goja.FunctionCall) goja.Value {
		if err := rows.Close(); err != nil {
			panic(rt.NewGoError(err))
		}
		return goja.Undefined()
	})
	_ = results.SetSymbol(goja.SymIterator, func(goja.FunctionCall) goja.Value {
		return newIterator(rt, rows)
	})
	return results
}

// newIterator implements the iterator protocol over rows. return() is what
// for...of calls on break, so leaving a loop early releases the cursor.
func newIterator(rt *goja.Runtime, rows *driver.Rows) *goja.Object {
	it := rt.NewObject()
	_ = it.Set("next", func(goja.FunctionCall) goja.Value {
		result := rt.NewObject()
		if rows.Next() {
			_ = result.Set("value", rowObject(rt, rows.Row()))
			_ = result.Set("done", false)
			return result
		}
		if err := rows.Err(); err != nil {
			panic(rt.NewGoError(err))
		}
		_ = result.Set("value", goja.Undefined())
		_ = result.Set("done", true)
		return result
	})
	_ = it.Set("return", func(goja.FunctionCall) goja.Value {
		_ = rows.Close()
		result := rt.NewObject()
		_ = result.Set("done", true)
		return result
	})
	return it
}

// rowObject returns row as a plain object. Properties are defined in column
// order, so Object.keys(row) lists the columns as the query returned them.
func rowObject(rt *goja.Runtime, row driver.Row) *goja.Object {
	obj := rt.NewObject()
	values := row.Values()
	for i, column := range row.Columns() {
		_ = obj.Set(column, values[i])
	}
	return obj
}
