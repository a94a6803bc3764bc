// Package drivertest provides an in-memory driver.Engine for unit tests. It
// does not parse CQL: responses are registered per statement text.
package drivertest

import (
	"context"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"

	"github.com/grafana/cqlclient/pkg/driver"
)

var (
	ErrNoResponse = errors.New("drivertest: no response registered for statement")
	ErrTimeout    = errors.New("drivertest: request timed out")
)

// Operation names accepted by Engine.Calls.
const (
	OpConnect = "connect"
	OpPrepare = "prepare"
	OpExecute = "execute"
	OpClose   = "close"
)

// Response describes how the engine answers one statement.
type Response struct {
	Rows  *driver.Rows
	Err   error
	Delay time.Duration

	// Hang leaves the future unresolved forever.
	Hang bool

	// Duplicate delivers the completion twice from two goroutines.
	Duplicate bool
}

// Engine is a scriptable driver.Engine.
type Engine struct {
	ConnectDelay time.Duration
	ConnectErr   error
	ConnectHang  bool
	PrepareErr   error

	// HonorTimeouts makes requests with a timeout hint fail with ErrTimeout
	// when their Delay exceeds it.
	HonorTimeouts bool

	// Default answers statements with no registered response.
	Default *Response

	mu        sync.Mutex
	responses map[string]Response
	calls     map[string]int
	conns     []*Conn
	configs   []*gocql.ClusterConfig
}

// NewEngine returns an engine that connects immediately.
func NewEngine() *Engine {
	return &Engine{
		responses: map[string]Response{},
		calls:     map[string]int{},
	}
}

// Handle registers the response for a statement.
func (e *Engine) Handle(statement string, resp Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses[statement] = resp
}

// Calls returns how many times op was invoked.
func (e *Engine) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// TotalCalls returns the number of engine interactions of any kind.
func (e *Engine) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		n += c
	}
	return n
}

// Conns returns every connection the engine handed out, including ones that
// arrived after the caller gave up.
func (e *Engine) Conns() []*Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Conn(nil), e.conns...)
}

// Configs returns the cluster configs passed to Connect.
func (e *Engine) Configs() []*gocql.ClusterConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*gocql.ClusterConfig(nil), e.configs...)
}

func (e *Engine) record(op string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[op]++
}

func (e *Engine) Connect(cfg *gocql.ClusterConfig) *driver.Future[driver.Conn] {
	e.mu.Lock()
	e.calls[OpConnect]++
	e.configs = append(e.configs, cfg)
	e.mu.Unlock()

	f := driver.NewFuture[driver.Conn]()
	if e.ConnectHang {
		return f
	}
	release := f.Retain()
	time.AfterFunc(e.ConnectDelay, func() {
		defer release()
		if e.ConnectErr != nil {
			f.Resolve(nil, e.ConnectErr)
			return
		}
		conn := &Conn{engine: e}
		e.mu.Lock()
		e.conns = append(e.conns, conn)
		e.mu.Unlock()
		f.Resolve(conn, nil)
	})
	return f
}

// Conn is a connection handed out by Engine.
type Conn struct {
	engine *Engine

	mu       sync.Mutex
	closed   int
	requests []driver.Request
	futures  []*driver.Future[*driver.Rows]
}

// Closed reports whether Close has been called at least once.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed > 0
}

// Requests returns copies of every request executed on the connection.
func (c *Conn) Requests() []driver.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]driver.Request(nil), c.requests...)
}

// Futures returns every future returned by Execute.
func (c *Conn) Futures() []*driver.Future[*driver.Rows] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*driver.Future[*driver.Rows](nil), c.futures...)
}

func (c *Conn) Prepare(_ context.Context, query string) (*driver.PreparedQuery, error) {
	c.engine.record(OpPrepare)
	if c.engine.PrepareErr != nil {
		return nil, c.engine.PrepareErr
	}
	return &driver.PreparedQuery{Query: query}, nil
}

func (c *Conn) Execute(req *driver.Request) *driver.Future[*driver.Rows] {
	c.engine.record(OpExecute)
	f := driver.NewFuture[*driver.Rows]()

	c.mu.Lock()
	c.requests = append(c.requests, *req)
	c.futures = append(c.futures, f)
	c.mu.Unlock()

	resp := c.engine.response(req)
	if resp.Hang {
		return f
	}

	delay, err := resp.Delay, resp.Err
	if c.engine.HonorTimeouts && req.Timeout > 0 && delay > req.Timeout {
		delay, err = req.Timeout, ErrTimeout
	}
	rows := resp.Rows
	if err != nil {
		rows = nil
	}

	release := f.Retain()
	time.AfterFunc(delay, func() {
		defer release()
		if !resp.Duplicate {
			f.Resolve(rows, err)
			return
		}
		var wg sync.WaitGroup
		wg.Add(2)
		for i := 0; i < 2; i++ {
			go func() {
				defer wg.Done()
				f.Resolve(rows, err)
			}()
		}
		wg.Wait()
	})
	return f
}

func (e *Engine) response(req *driver.Request) Response {
	stmt := req.Statement
	if req.Prepared != nil {
		stmt = req.Prepared.Query
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if resp, ok := e.responses[stmt]; ok {
		return resp
	}
	if e.Default != nil {
		return *e.Default
	}
	return Response{Err: errors.Wrap(ErrNoResponse, stmt)}
}

func (c *Conn) Close() {
	c.engine.record(OpClose)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
}

// Text builds a varchar cell.
func Text(s string) driver.Value { return driver.NewValue(gocql.TypeVarchar, s) }

// ASCII builds an ascii cell.
func ASCII(s string) driver.Value { return driver.NewValue(gocql.TypeAscii, s) }

// Timestamp builds a timestamp cell from milliseconds since the Unix epoch.
func Timestamp(ms int64) driver.Value { return driver.NewValue(gocql.TypeTimestamp, ms) }

// Int builds an int cell.
func Int(i int32) driver.Value { return driver.NewValue(gocql.TypeInt, i) }

// BigInt builds a bigint cell.
func BigInt(i int64) driver.Value { return driver.NewValue(gocql.TypeBigInt, i) }

// Bool builds a boolean cell.
func Bool(b bool) driver.Value { return driver.NewValue(gocql.TypeBoolean, b) }

// Null builds a null cell of the given type.
func Null(typ gocql.Type) driver.Value { return driver.NewValue(typ, nil) }
