package client

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/grafana/cqlclient/pkg/driver"
)

// Result is the outcome of one statement execution: either an error or a
// sequence of rows. A Result owns the application token of the engine future
// that produced it; Close releases it. Rows and Values obtained from a Result
// are views into its data and must not be used after Close.
type Result struct {
	future  *driver.Future[*driver.Rows]
	rows    *driver.Rows
	err     error
	pending bool

	rowsOnce sync.Once
	rowViews []*Row

	closed atomic.Bool
}

// newResult takes ownership of f's application token. If f has not resolved
// yet the Result is a pending error Result.
func newResult(f *driver.Future[*driver.Rows]) *Result {
	r := &Result{future: f}
	rows, err := f.Get()
	switch {
	case errors.Is(err, driver.ErrNotReady):
		r.pending = true
		r.err = ErrRequestPending
	case err != nil:
		r.err = &ExecutionError{Message: err.Error(), Err: err}
	case rows == nil:
		r.rows = &driver.Rows{}
	default:
		r.rows = rows
	}
	return r
}

// IsError reports whether the execution failed or had not completed when the
// Result was produced.
func (r *Result) IsError() bool { return r.err != nil }

// Err returns the execution error, if any.
func (r *Result) Err() error { return r.err }

// ErrorMessage returns the engine's error message, or "" on success.
func (r *Result) ErrorMessage() string {
	if r.err == nil {
		return ""
	}
	var execErr *ExecutionError
	if errors.As(r.err, &execErr) {
		return execErr.Message
	}
	return r.err.Error()
}

// Pending reports whether the request was still unresolved when the Result
// was produced, which only happens when a synchronous wait timed out.
func (r *Result) Pending() bool { return r.pending }

// Columns returns the names of the result columns.
func (r *Result) Columns() []string {
	if r.rows == nil {
		return nil
	}
	names := make([]string, len(r.rows.Columns))
	for i, c := range r.rows.Columns {
		names[i] = c.Name
	}
	return names
}

// RowCount returns the number of rows, zero for error Results.
func (r *Result) RowCount() int {
	if r.rows == nil {
		return 0
	}
	return len(r.rows.Data)
}

// Rows returns the rows of a successful Result.
func (r *Result) Rows() []*Row {
	r.rowsOnce.Do(func() {
		if r.rows == nil {
			return
		}
		r.rowViews = make([]*Row, len(r.rows.Data))
		for i, cells := range r.rows.Data {
			r.rowViews[i] = newRow(r, cells)
		}
	})
	return r.rowViews
}

// Row returns the i-th row, or nil when out of range.
func (r *Result) Row(i int) *Row {
	rows := r.Rows()
	if i < 0 || i >= len(rows) {
		return nil
	}
	return rows[i]
}

// Close releases the Result's hold on the engine future. Safe to call more
// than once; the engine's own hold is not affected.
func (r *Result) Close() {
	if r.closed.CompareAndSwap(false, true) {
		r.future.Release()
	}
}

// Row is one row of a Result.
type Row struct {
	values []Value
}

func newRow(r *Result, cells []driver.Value) *Row {
	row := &Row{values: make([]Value, len(cells))}
	for i := range cells {
		row.values[i].result = r
		row.values[i].cell = &cells[i]
	}
	return row
}

// Len returns the number of columns in the row.
func (r *Row) Len() int { return len(r.values) }

// Column returns the value of column i. An out of range index yields a Value
// whose decoders fail with ErrColumnOutOfRange.
func (r *Row) Column(i int) *Value {
	if i < 0 || i >= len(r.values) {
		return &Value{err: errors.Wrapf(ErrColumnOutOfRange, "column %d of %d", i, len(r.values))}
	}
	return &r.values[i]
}
