package driver

import (
	"context"
	"reflect"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gocql/gocql"
	"github.com/grafana/dskit/instrument"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	util_metrics "github.com/grafana/cqlclient/pkg/util/metrics"
)

type gocqlMetrics struct {
	requestDuration *instrument.HistogramCollector
}

func newGocqlMetrics(r prometheus.Registerer) *gocqlMetrics {
	return &gocqlMetrics{
		requestDuration: instrument.NewHistogramCollector(util_metrics.MustRegisterOrGet(r, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cqlclient",
			Subsystem: "driver",
			Name:      "request_duration_seconds",
			Help:      "Time spent executing CQL requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}, []string{"operation", "status_code"}))),
	}
}

// GocqlEngine is the production Engine, backed by github.com/gocql/gocql.
// Every request runs on its own goroutine, which is the goroutine that
// resolves the future and runs its completion callback.
type GocqlEngine struct {
	metrics *gocqlMetrics
	logger  log.Logger
}

// NewGocqlEngine returns an engine that connects with gocql.
func NewGocqlEngine(reg prometheus.Registerer, logger log.Logger) *GocqlEngine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &GocqlEngine{
		metrics: newGocqlMetrics(reg),
		logger:  logger,
	}
}

func (e *GocqlEngine) Connect(cfg *gocql.ClusterConfig) *Future[Conn] {
	f := NewFuture[Conn]()
	release := f.Retain()
	go func() {
		defer release()
		session, err := cfg.CreateSession()
		if err != nil {
			f.Resolve(nil, errors.WithStack(err))
			return
		}
		conn := &gocqlConn{session: session, engine: e}
		if !f.Resolve(conn, nil) {
			conn.Close()
		}
	}()
	return f
}

type gocqlConn struct {
	session *gocql.Session
	engine  *GocqlEngine
	closed  atomic.Bool
}

// Prepare only records the query text. gocql prepares statements lazily on
// first execution and caches the prepared id per connection.
func (c *gocqlConn) Prepare(_ context.Context, query string) (*PreparedQuery, error) {
	if c.closed.Load() {
		return nil, gocql.ErrSessionClosed
	}
	return &PreparedQuery{Query: query}, nil
}

func (c *gocqlConn) Execute(req *Request) *Future[*Rows] {
	f := NewFuture[*Rows]()
	release := f.Retain()
	go func() {
		defer release()

		ctx := context.Background()
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}

		var rows *Rows
		err := instrument.CollectedRequest(ctx, "cql.Execute", c.engine.metrics.requestDuration, instrument.ErrorCode, func(ctx context.Context) error {
			var err error
			rows, err = c.run(ctx, req)
			return err
		})
		if err != nil {
			level.Debug(c.engine.logger).Log("msg", "cql request failed", "statement", req.Statement, "err", err)
		}
		f.Resolve(rows, err)
	}()
	return f
}

func (c *gocqlConn) run(ctx context.Context, req *Request) (rows *Rows, err error) {
	stmt := req.Statement
	if req.Prepared != nil {
		stmt = req.Prepared.Query
	}
	q := c.session.Query(stmt, req.Args...).Consistency(req.Consistency).WithContext(ctx)
	defer q.Release()
	if req.PageSize > 0 {
		q = q.PageSize(req.PageSize)
	}
	if req.Idempotent {
		q = q.Idempotent(true)
	}

	iter := q.Iter()
	defer func() {
		if p := recover(); p != nil {
			iter.Close()
			rows, err = nil, errors.Errorf("decoding rows of %q: %v", stmt, p)
		}
	}()

	columns, infos := expandColumns(iter.Columns())
	rows = &Rows{Columns: columns}
	for {
		dest := scanTargets(infos)
		if !iter.Scan(dest...) {
			break
		}
		rows.Data = append(rows.Data, decodeRow(columns, dest))
	}
	if err := iter.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return rows, nil
}

func (c *gocqlConn) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.session.Close()
	}
}

// expandColumns flattens tuple columns into one column per element, the
// way gocql scans them.
func expandColumns(cols []gocql.ColumnInfo) ([]Column, []gocql.TypeInfo) {
	columns := make([]Column, 0, len(cols))
	infos := make([]gocql.TypeInfo, 0, len(cols))
	for _, col := range cols {
		if tuple, ok := col.TypeInfo.(gocql.TupleTypeInfo); ok {
			for i, elem := range tuple.Elems {
				columns = append(columns, Column{Name: gocql.TupleColumnName(col.Name, i), Type: elem.Type()})
				infos = append(infos, elem)
			}
			continue
		}
		columns = append(columns, Column{Name: col.Name, Type: col.TypeInfo.Type()})
		infos = append(infos, col.TypeInfo)
	}
	return columns, infos
}

// scanTargets allocates one **T per column. gocql leaves the inner pointer
// nil for a CQL null instead of writing the zero value.
func scanTargets(infos []gocql.TypeInfo) []interface{} {
	dest := make([]interface{}, len(infos))
	for i, info := range infos {
		elem := reflect.TypeOf(info.New()).Elem()
		dest[i] = reflect.New(reflect.PointerTo(elem)).Interface()
	}
	return dest
}

func decodeRow(columns []Column, dest []interface{}) []Value {
	row := make([]Value, len(dest))
	for i, ptr := range dest {
		row[i] = convertValue(columns[i].Type, ptr)
	}
	return row
}

// convertValue turns a scan target filled in by gocql into a cell with the
// raw representation documented on Value.
func convertValue(typ gocql.Type, ptr interface{}) Value {
	rv := reflect.ValueOf(ptr)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return NewValue(typ, nil)
		}
		rv = rv.Elem()
	}

	switch raw := rv.Interface().(type) {
	case int:
		if typ == gocql.TypeInt {
			return NewValue(typ, int32(raw))
		}
		return NewValue(typ, int64(raw))
	case time.Time:
		if typ == gocql.TypeTimestamp {
			return NewValue(typ, raw.UnixMilli())
		}
		return NewValue(typ, raw)
	default:
		return NewValue(typ, raw)
	}
}
