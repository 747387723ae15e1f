package mcpipe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Future is the pending result of a request.
//
// A Future is resolved exactly once, by the component that created it. Callers can
// block on it (Get, Wait), poll it (Ready, Done) or attach continuations (OnComplete).
type Future struct {
	done     chan struct{}
	resolved atomic.Bool

	// written once before done is closed
	resp Response
	err  error

	mu        sync.Mutex
	callbacks []func(Response, error)
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func failedFuture(err error) *Future {
	f := newFuture()
	f.resolve(nil, err)
	return f
}

// CompletedFuture returns a Future already resolved with resp.
// Mostly useful for RawClient test doubles.
func CompletedFuture(resp Response) *Future {
	f := newFuture()
	f.resolve(resp, nil)
	return f
}

// FailedFuture returns a Future already resolved with err.
// Mostly useful for RawClient test doubles.
func FailedFuture(err error) *Future {
	return failedFuture(err)
}

// resolve completes the future. A second call is a bug in the owner and panics.
func (f *Future) resolve(resp Response, err error) {
	if !f.resolved.CompareAndSwap(false, true) {
		panic("mcpipe: future resolved twice")
	}

	f.resp = resp
	f.err = err

	f.mu.Lock()
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn(resp, err)
	}
}

// Done returns a channel closed when the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready returns true if the future is resolved.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future is resolved.
func (f *Future) Get() (Response, error) {
	<-f.done
	return f.resp, f.err
}

// Wait blocks until the future is resolved or ctx is done.
// When ctx wins, a KindRequestTimeout error is returned and the request stays in
// flight: the future will still be resolved later.
func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	default:
	}

	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, &Error{Kind: KindRequestTimeout, Reason: "gave up waiting for response", Err: ctx.Err()}
	}
}

// OnComplete registers fn to be called with the result.
//
// If the future is already resolved, fn runs immediately on the calling goroutine.
// Otherwise it runs on the goroutine resolving the future, which for a Client is its
// read loop: fn must not block.
func (f *Future) OnComplete(fn func(Response, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f.resp, f.err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}
