package driver

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

var (
	ErrNotReady    = errors.New("future not resolved")
	ErrFreed       = errors.New("future resources released")
	ErrCallbackSet = errors.New("completion callback already registered")
)

// Future is a single engine request result that resolves exactly once.
//
// A future is reference counted through two independent kinds of token. The
// application token is created with the future and released with Release;
// it is what a Result takes ownership of. Engine tokens are taken with
// Retain and released by calling the returned function. Each token can only
// be released once, and the resolved value is dropped once every token has
// been released.
type Future[T any] struct {
	done chan struct{}

	mu       sync.Mutex
	resolved bool
	val      T
	err      error
	callback func(*Future[T])
	freed    bool

	refs        atomic.Int32
	appReleased atomic.Bool
}

// NewFuture returns an unresolved future holding only the application token.
func NewFuture[T any]() *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	f.refs.Store(1)
	return f
}

// Retain takes an engine token. The returned function releases it; calling it
// more than once has no further effect.
func (f *Future[T]) Retain() (release func()) {
	f.refs.Inc()
	var once sync.Once
	return func() { once.Do(f.unref) }
}

// Release releases the application token. Idempotent.
func (f *Future[T]) Release() {
	if f.appReleased.CompareAndSwap(false, true) {
		f.unref()
	}
}

func (f *Future[T]) unref() {
	if f.refs.Dec() != 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	f.val = zero
	f.freed = true
}

// Freed reports whether every token has been released.
func (f *Future[T]) Freed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freed
}

// Resolve settles the future. Only the first call has an effect; it returns
// false for every later call. A registered completion callback runs on the
// calling goroutine before Resolve returns, so engines must hold a token
// across the call.
func (f *Future[T]) Resolve(val T, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.resolved = true
	f.val, f.err = val, err
	cb := f.callback
	f.callback = nil
	close(f.done)
	f.mu.Unlock()

	if cb != nil {
		cb(f)
	}
	return true
}

// OnComplete registers fn to run once the future resolves. If the future has
// already resolved, fn runs on a new goroutine holding its own engine token;
// either way it never runs on the caller's goroutine. Only one callback may
// be registered.
func (f *Future[T]) OnComplete(fn func(*Future[T])) error {
	f.mu.Lock()
	if f.callback != nil {
		f.mu.Unlock()
		return ErrCallbackSet
	}
	if !f.resolved {
		f.callback = fn
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	release := f.Retain()
	go func() {
		defer release()
		fn(f)
	}()
	return nil
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future has resolved.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx is done, returning ctx.Err()
// in the latter case.
func (f *Future[T]) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimed blocks for at most d and reports whether the future resolved.
func (f *Future[T]) WaitTimed(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-f.done:
		return true
	case <-t.C:
		return f.Ready()
	}
}

// Get returns the resolved value without blocking. It fails with ErrNotReady
// before resolution and ErrFreed once every token has been released.
func (f *Future[T]) Get() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	switch {
	case !f.resolved:
		return zero, ErrNotReady
	case f.freed:
		return zero, ErrFreed
	}
	return f.val, f.err
}
