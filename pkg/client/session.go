// Package client implements a session to a Cassandra cluster: connecting
// with a bounded timeout, a registry of prepared statements, synchronous and
// asynchronous execution with in-flight accounting, and typed decoding of
// result columns.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/grafana/cqlclient/pkg/cluster"
	"github.com/grafana/cqlclient/pkg/driver"
)

// State of a Session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session is one connection to a cluster. It owns the cluster and the
// connection handle and releases both together. A Session is connected at
// most once; after a failure or Close a new Session must be created.
type Session struct {
	engine   driver.Engine
	metrics  *metrics
	logger   log.Logger
	prepared *registry
	inFlight atomic.Int64
	state    atomic.Int32

	mu      sync.RWMutex
	cluster *cluster.Cluster
	conn    driver.Conn
}

// New returns a disconnected session owning c. A nil engine selects the
// gocql engine. Sessions created with the same reg share their metrics; the
// in-flight gauge then sums over those sessions while InFlight stays per
// session.
func New(c *cluster.Cluster, engine driver.Engine, reg prometheus.Registerer, logger log.Logger) *Session {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if engine == nil {
		engine = driver.NewGocqlEngine(reg, logger)
	}
	return &Session{
		engine:   engine,
		metrics:  newMetrics(reg),
		logger:   logger,
		prepared: newRegistry(),
		cluster:  c,
	}
}

// Connect creates a session owning c and connects it. On failure the session
// has already released the cluster and any connection, and is not returned.
func Connect(ctx context.Context, c *cluster.Cluster, connectTimeout time.Duration, engine driver.Engine, reg prometheus.Registerer, logger log.Logger) (*Session, error) {
	s := New(c, engine, reg, logger)
	if err := s.Connect(ctx, connectTimeout); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect bootstraps the cluster hosts, opens the connection and waits at
// most connectTimeout for the engine to resolve it. Errors satisfy
// errors.Is(err, ErrConnection); on error the session moves to Failed and
// has released the cluster and connection.
func (s *Session) Connect(ctx context.Context, connectTimeout time.Duration) error {
	if !s.state.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		return errors.Wrapf(ErrAlreadyConnected, "session is %s", s.State())
	}
	start := time.Now()
	hosts, err := s.connect(ctx, connectTimeout)
	if err != nil {
		s.metrics.connectDuration.WithLabelValues(statusError).Observe(time.Since(start).Seconds())
		level.Error(s.logger).Log("msg", "failed to connect", "timeout", connectTimeout, "err", err)
		s.teardown(Failed)
		return err
	}
	s.metrics.connectDuration.WithLabelValues(statusSuccess).Observe(time.Since(start).Seconds())
	level.Info(s.logger).Log("msg", "connected", "hosts", hosts, "duration", time.Since(start))
	return nil
}

func (s *Session) connect(ctx context.Context, connectTimeout time.Duration) (int, error) {
	if connectTimeout <= 0 {
		return 0, connectFailed(errors.Wrapf(ErrInvalidTimeout, "connect timeout must be positive, got %s", connectTimeout))
	}
	s.mu.RLock()
	c := s.cluster
	s.mu.RUnlock()
	if c == nil {
		return 0, connectFailed(errors.New("session has no cluster"))
	}
	if err := c.BootstrapHosts(); err != nil {
		return 0, connectFailed(err)
	}
	cfg, err := c.ClusterConfig()
	if err != nil {
		return 0, connectFailed(err)
	}
	cfg.ConnectTimeout = connectTimeout

	f := s.engine.Connect(cfg)
	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := f.Wait(waitCtx); err != nil {
		abandonConnect(f, s.logger)
		if ctx.Err() != nil {
			return 0, connectFailed(ctx.Err())
		}
		return 0, &ConnectTimeoutError{Timeout: connectTimeout}
	}

	conn, err := f.Get()
	f.Release()
	if err != nil {
		return 0, connectFailed(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Connecting {
		// Closed while connecting.
		conn.Close()
		return 0, connectFailed(ErrSessionClosed)
	}
	s.conn = conn
	s.state.Store(int32(Connected))
	return len(cfg.Hosts), nil
}

// abandonConnect gives up on a connect attempt; a connection that arrives
// later is closed straight away.
func abandonConnect(f *driver.Future[driver.Conn], logger log.Logger) {
	err := f.OnComplete(func(f *driver.Future[driver.Conn]) {
		if conn, err := f.Get(); err == nil && conn != nil {
			level.Debug(logger).Log("msg", "closing connection that completed after connect timeout")
			conn.Close()
		}
	})
	if err != nil {
		level.Warn(logger).Log("msg", "could not watch abandoned connect attempt", "err", err)
	}
	f.Release()
}

// State returns the current state of the session.
func (s *Session) State() State {
	return State(s.state.Load())
}

// InFlight returns the number of requests dispatched but not yet completed.
// It is a point-in-time approximation, not a drain barrier.
func (s *Session) InFlight() int64 {
	return s.inFlight.Load()
}

func (s *Session) begin() {
	s.inFlight.Inc()
	s.metrics.inFlight.Inc()
}

func (s *Session) end() {
	s.inFlight.Dec()
	s.metrics.inFlight.Dec()
}

func (s *Session) connection() (driver.Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch st := s.State(); st {
	case Connected:
		if s.conn != nil {
			return s.conn, nil
		}
		return nil, ErrSessionClosed
	case Failed:
		return nil, ErrSessionFailed
	case Closed:
		return nil, ErrSessionClosed
	default:
		return nil, errors.Wrapf(ErrNotConnected, "session is %s", st)
	}
}

// RegisterPrepared compiles query on the connection and registers it under
// name, replacing any previous statement with that name.
func (s *Session) RegisterPrepared(ctx context.Context, name, query string) (*Prepared, error) {
	conn, err := s.connection()
	if err != nil {
		return nil, err
	}
	handle, err := conn.Prepare(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "preparing %q", name)
	}
	p := newPrepared(name, handle)
	s.prepared.put(p)
	return p, nil
}

// LookupPrepared returns the statement registered under name. It does not
// talk to the cluster.
func (s *Session) LookupPrepared(name string) (*Prepared, bool) {
	return s.prepared.get(name)
}

// Execute runs stmt with consistency c and waits for the outcome. A non-zero
// timeout is applied to the statement and bounds the wait; zero waits until
// the engine resolves the request or ctx is done. When the wait ends first
// the request is not cancelled and the Result is a pending error Result.
//
// Engine failures are reported through the Result. The error return is only
// used for session state and misuse errors.
func (s *Session) Execute(ctx context.Context, stmt *Statement, timeout time.Duration, c gocql.Consistency) (*Result, error) {
	conn, err := s.connection()
	if err != nil {
		return nil, err
	}
	req, err := stmt.apply(c, timeout)
	if err != nil {
		return nil, err
	}

	s.begin()
	defer s.end()

	f := conn.Execute(req)
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	waitErr := f.Wait(waitCtx)

	r := newResult(f)
	if r.Pending() {
		r.err = errors.Wrapf(ErrRequestPending, "no response after %s: %v", timeout, waitErr)
		s.watchLateCompletion(f, req)
	}
	s.metrics.observeResult(modeSync, r)
	return r, nil
}

// watchLateCompletion logs a request that completes after its synchronous
// caller stopped waiting.
func (s *Session) watchLateCompletion(f *driver.Future[*driver.Rows], req *driver.Request) {
	start := time.Now()
	err := f.OnComplete(func(f *driver.Future[*driver.Rows]) {
		s.metrics.lateCompletions.Inc()
		_, err := f.Get()
		level.Debug(s.logger).Log("msg", "dropping late completion of timed out request", "statement", req.Statement, "late_by", time.Since(start), "err", err)
	})
	if err != nil {
		level.Warn(s.logger).Log("msg", "could not watch timed out request", "err", err)
	}
}

// ExecuteAsync dispatches stmt with consistency c and returns without
// waiting. cb, if not nil, is called exactly once with the Result on an
// engine goroutine. A non-zero timeout is passed to the engine.
func (s *Session) ExecuteAsync(stmt *Statement, cb Callback, timeout time.Duration, c gocql.Consistency) error {
	conn, err := s.connection()
	if err != nil {
		return err
	}
	req, err := stmt.apply(c, timeout)
	if err != nil {
		return err
	}

	s.begin()
	bridge := newCallbackBridge(s, cb)
	f := conn.Execute(req)
	if err := f.OnComplete(bridge.complete); err != nil {
		// Only possible if the engine registered a callback of its own.
		level.Error(s.logger).Log("msg", "could not register completion callback", "err", err)
		go func() {
			f.Wait(context.Background())
			bridge.complete(f)
		}()
	}
	return nil
}

// Close tears down the connection and releases the cluster. Requests still
// in flight complete with whatever the engine reports. Safe to call more
// than once.
func (s *Session) Close() {
	s.teardown(Closed)
}

func (s *Session) teardown(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.cluster != nil {
		s.cluster.Release()
		s.cluster = nil
	}

	if st := s.State(); st == Closed || (st == Failed && to == Closed) {
		return
	}
	s.state.Store(int32(to))
}
