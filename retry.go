package mcpipe

import (
	"go.uber.org/zap"
)

const DefaultMaxAttempts = 2

// RetryingClient resends requests that failed because their connection was lost.
//
// Only KindClosed failures are retried, and only for requests accepted by the
// retryable predicate (Request.Idempotent by default). Retries are sent to the same
// inner client, which may be a pooling or reconnecting RawClient. When all attempts
// fail, the error of the last attempt is returned as is.
type RetryingClient struct {
	inner       RawClient
	maxAttempts int
	retryable   func(Request) bool
	log         *zap.Logger
	stats       retryStatsCollector
}

type RetryOption func(*RetryingClient)

// WithMaxAttempts sets the total number of attempts, first one included.
// Values below 1 are treated as 1.
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryingClient) {
		c.maxAttempts = max(n, 1)
	}
}

// WithRetryable replaces the predicate deciding whether a request may be sent again.
func WithRetryable(fn func(Request) bool) RetryOption {
	return func(c *RetryingClient) {
		c.retryable = fn
	}
}

func WithLogger(logger *zap.Logger) RetryOption {
	return func(c *RetryingClient) {
		c.log = logger
	}
}

// NewRetryingClient wraps inner. Without options it makes DefaultMaxAttempts attempts
// per idempotent request.
func NewRetryingClient(inner RawClient, opts ...RetryOption) *RetryingClient {
	c := &RetryingClient{
		inner:       inner,
		maxAttempts: DefaultMaxAttempts,
		retryable:   Request.Idempotent,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send sends req and returns its result once an attempt succeeds or no attempt is left.
// It never blocks: retries are chained on the completion of the previous attempt.
func (c *RetryingClient) Send(req Request) *Future {
	c.stats.recordCall()

	out := newFuture()
	c.attempt(req, 1, out)
	return out
}

func (c *RetryingClient) attempt(req Request, n int, out *Future) {
	c.stats.recordAttempt(n)

	c.inner.Send(req).OnComplete(func(resp Response, err error) {
		if err == nil {
			out.resolve(resp, nil)
			return
		}

		if !IsRetryable(err) || !c.retryable(req) {
			out.resolve(nil, err)
			return
		}

		if n >= c.maxAttempts {
			c.stats.recordExhausted()
			out.resolve(nil, err)
			return
		}

		c.log.Debug("retrying request",
			zap.Int("attempt", n+1),
			zap.Int("max_attempts", c.maxAttempts),
			zap.String("reason", Reason(err)),
		)
		c.attempt(req, n+1, out)
	})
}

func (c *RetryingClient) IsConnected() bool {
	return c.inner.IsConnected()
}

func (c *RetryingClient) Shutdown() {
	c.inner.Shutdown()
}

// Stats returns a snapshot of the retry counters.
func (c *RetryingClient) Stats() RetryStats {
	return c.stats.snapshot()
}
