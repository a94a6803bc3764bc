package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
)

var (
	// ErrConnection matches every error returned by Connect.
	ErrConnection = errors.New("connection error")

	ErrInvalidTimeout    = errors.New("invalid timeout")
	ErrAlreadyConnected  = errors.New("session already connected or connecting")
	ErrNotConnected      = errors.New("session not connected")
	ErrSessionFailed     = errors.New("session failed to connect")
	ErrSessionClosed     = errors.New("session closed")
	ErrStatementConsumed = errors.New("statement already executed")
	ErrRequestPending    = errors.New("request still pending")
	ErrResultClosed      = errors.New("result closed")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrColumnOutOfRange  = errors.New("column index out of range")
	ErrNullValue         = errors.New("value is null")
)

// ConnectTimeoutError is returned when the engine did not resolve a connect
// attempt within the connect timeout.
type ConnectTimeoutError struct {
	Timeout time.Duration
}

func (e *ConnectTimeoutError) Error() string {
	return fmt.Sprintf("timed out attempting to connect to cassandra with timeout of: %d ms", e.Timeout.Milliseconds())
}

func (e *ConnectTimeoutError) Is(target error) bool { return target == ErrConnection }

// ConnectFailedError is returned when the session could not be initialized or
// the engine rejected the connect attempt.
type ConnectFailedError struct {
	Message string
	Err     error
}

func (e *ConnectFailedError) Error() string {
	return "failed to connect to the cassandra cluster: " + e.Message
}

func (e *ConnectFailedError) Is(target error) bool { return target == ErrConnection }
func (e *ConnectFailedError) Unwrap() error        { return e.Err }

func connectFailed(err error) *ConnectFailedError {
	return &ConnectFailedError{Message: err.Error(), Err: err}
}

// ExecutionError is an engine-reported query failure, carried in a Result.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string { return "query failed: " + e.Message }
func (e *ExecutionError) Unwrap() error { return e.Err }

// TypeMismatchError is returned when a Value is decoded as a type that does
// not match its declared type.
type TypeMismatchError struct {
	Want []gocql.Type
	Got  gocql.Type
}

func (e *TypeMismatchError) Error() string {
	want := make([]string, len(e.Want))
	for i, t := range e.Want {
		want[i] = t.String()
	}
	return fmt.Sprintf("type mismatch: cannot decode %s value as %s", e.Got, strings.Join(want, " or "))
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }
