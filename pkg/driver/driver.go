// Package driver is the boundary between the session layer and the engine that
// speaks the CQL wire protocol. The session layer only ever sees Engine, Conn,
// Future and Value; the gocql-backed engine and the in-memory engine in
// drivertest both implement it.
package driver

import (
	"context"
	"time"

	"github.com/gocql/gocql"
)

// Engine opens connections to a cluster.
type Engine interface {
	// Connect starts connecting to the bootstrapped cluster described by cfg.
	// It never blocks; the returned future resolves to the connection or to
	// the error reported by the engine. The caller owns the future's
	// application token.
	Connect(cfg *gocql.ClusterConfig) *Future[Conn]
}

// Conn is a live connection handle. It is safe for concurrent use.
type Conn interface {
	// Prepare compiles query against the connection.
	Prepare(ctx context.Context, query string) (*PreparedQuery, error)

	// Execute dispatches req without blocking. The caller owns the returned
	// future's application token; the engine holds its own token until it has
	// finished running completion callbacks.
	Execute(req *Request) *Future[*Rows]

	// Close tears the connection down. Safe to call more than once.
	Close()
}

// PreparedQuery is an engine-compiled query template.
type PreparedQuery struct {
	Query   string
	Columns []Column
}

// Request is a single statement execution as seen by the engine.
type Request struct {
	Statement   string
	Args        []interface{}
	Prepared    *PreparedQuery
	Consistency gocql.Consistency

	// Timeout is a hint; zero means the engine applies no per-request timeout.
	Timeout    time.Duration
	PageSize   int
	Idempotent bool
}

// Column describes one result column.
type Column struct {
	Name string
	Type gocql.Type
}

// Rows is a fully materialized result set.
type Rows struct {
	Columns []Column
	Data    [][]Value
}

// NewRows builds a result set. Each row must have len(columns) cells.
func NewRows(columns []Column, data ...[]Value) *Rows {
	return &Rows{Columns: columns, Data: data}
}

// Value is one opaque cell. The raw representation depends on the type:
// text types hold a string, timestamps hold int64 milliseconds since the Unix
// epoch, int holds int32, bigint and counter hold int64, boolean holds bool,
// blob holds []byte. A nil raw value is a CQL null.
type Value struct {
	typ gocql.Type
	raw interface{}
}

// NewValue is used by engines to produce cells.
func NewValue(typ gocql.Type, raw interface{}) Value {
	return Value{typ: typ, raw: raw}
}

func (v Value) Type() gocql.Type { return v.typ }
func (v Value) Raw() interface{} { return v.raw }
func (v Value) IsNull() bool     { return v.raw == nil }
