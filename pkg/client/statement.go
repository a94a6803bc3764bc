package client

import (
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/atomic"

	"github.com/grafana/cqlclient/pkg/driver"
)

// Statement is a single executable query, either ad-hoc or bound from a
// Prepared. A Statement is consumed by the execute call it is passed to and
// cannot be executed again.
type Statement struct {
	query    string
	args     []interface{}
	prepared *Prepared

	consistency gocql.Consistency
	timeout     time.Duration
	pageSize    int
	idempotent  bool

	consumed atomic.Bool
}

// NewStatement returns an ad-hoc statement with values for its placeholders.
func NewStatement(query string, args ...interface{}) *Statement {
	return &Statement{query: query, args: args, consistency: gocql.Quorum}
}

// Query returns the CQL text of the statement.
func (s *Statement) Query() string {
	if s.prepared != nil {
		return s.prepared.Query()
	}
	return s.query
}

func (s *Statement) Args() []interface{}            { return s.args }
func (s *Statement) Consistency() gocql.Consistency { return s.consistency }
func (s *Statement) Timeout() time.Duration         { return s.timeout }
func (s *Statement) Prepared() *Prepared            { return s.prepared }

// SetConsistency sets the consistency level.
func (s *Statement) SetConsistency(c gocql.Consistency) *Statement {
	s.consistency = c
	return s
}

// SetTimeout sets the per-request timeout. Zero disables it.
func (s *Statement) SetTimeout(d time.Duration) *Statement {
	s.timeout = d
	return s
}

// WithPageSize sets the number of rows fetched per page.
func (s *Statement) WithPageSize(n int) *Statement {
	s.pageSize = n
	return s
}

// Idempotent marks the statement as safe to run more than once.
func (s *Statement) Idempotent(v bool) *Statement {
	s.idempotent = v
	return s
}

// apply sets the consistency and, unless timeout is zero, the timeout, then
// consumes the statement into an engine request.
func (s *Statement) apply(c gocql.Consistency, timeout time.Duration) (*driver.Request, error) {
	if timeout < 0 {
		return nil, ErrInvalidTimeout
	}
	if !s.consumed.CompareAndSwap(false, true) {
		return nil, ErrStatementConsumed
	}
	s.SetConsistency(c)
	if timeout != 0 {
		s.SetTimeout(timeout)
	}

	req := &driver.Request{
		Statement:   s.query,
		Args:        s.args,
		Consistency: s.consistency,
		Timeout:     s.timeout,
		PageSize:    s.pageSize,
		Idempotent:  s.idempotent,
	}
	if s.prepared != nil {
		req.Statement = s.prepared.Query()
		req.Prepared = s.prepared.handle
	}
	return req, nil
}
