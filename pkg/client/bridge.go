package client

import (
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/grafana/cqlclient/pkg/driver"
)

// Callback receives the Result of an asynchronous execution. It runs on a
// goroutine owned by the engine. The Result is closed as soon as the
// callback returns, so neither it nor its Rows and Values may be retained.
type Callback func(*Result)

// callbackBridge turns the engine's completion notification for one request
// into a single invocation of the application callback. It is owned by the
// in-flight request and is done after the first notification.
type callbackBridge struct {
	session  *Session
	callback Callback
	logger   log.Logger
	id       uuid.UUID
	start    time.Time
	fired    atomic.Bool
}

func newCallbackBridge(s *Session, cb Callback) *callbackBridge {
	id := uuid.New()
	return &callbackBridge{
		session:  s,
		callback: cb,
		logger:   log.With(s.logger, "request_id", id),
		id:       id,
		start:    time.Now(),
	}
}

func (b *callbackBridge) complete(f *driver.Future[*driver.Rows]) {
	if !b.fired.CompareAndSwap(false, true) {
		level.Warn(b.logger).Log("msg", "ignoring duplicate completion")
		return
	}

	s := b.session
	r := newResult(f)
	defer func() {
		r.Close()
		s.end()
		b.session, b.callback = nil, nil
	}()

	s.metrics.observeResult(modeAsync, r)
	if r.IsError() {
		level.Debug(b.logger).Log("msg", "async request failed", "duration", time.Since(b.start), "err", r.Err())
	}
	if b.callback == nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			s.metrics.callbackPanics.Inc()
			level.Error(b.logger).Log("msg", "completion callback panicked", "panic", fmt.Sprint(p))
		}
	}()
	b.callback(r)
}
