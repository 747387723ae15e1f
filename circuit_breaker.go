package mcpipe

import (
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// DefaultBreakerSettings returns circuit breaker settings that trip when at least 60% of
// at least 3 requests failed.
func DefaultBreakerSettings(name string, logger *zap.Logger) gobreaker.Settings {
	if logger == nil {
		logger = zap.NewNop()
	}

	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	}
}

// BreakerClient stops sending requests to a RawClient whose connection keeps failing.
//
// Only connection failures (KindClosed) count as failures: miss, not stored and server
// errors are successful round trips. While the circuit is open, Send fails immediately
// with a KindUnavailable error, which RetryingClient does not retry.
type BreakerClient struct {
	inner RawClient
	cb    *gobreaker.TwoStepCircuitBreaker[Response]
}

// NewBreakerClient wraps inner with a circuit breaker configured by settings,
// usually DefaultBreakerSettings.
func NewBreakerClient(inner RawClient, settings gobreaker.Settings) *BreakerClient {
	return &BreakerClient{
		inner: inner,
		cb:    gobreaker.NewTwoStepCircuitBreaker[Response](settings),
	}
}

func (c *BreakerClient) Send(req Request) *Future {
	done, err := c.cb.Allow()
	if err != nil {
		return failedFuture(&Error{Kind: KindUnavailable, Reason: "circuit breaker " + c.cb.State().String(), Err: err})
	}

	f := c.inner.Send(req)
	f.OnComplete(func(_ Response, err error) {
		done(err == nil || !IsRetryable(err))
	})
	return f
}

func (c *BreakerClient) IsConnected() bool {
	return c.inner.IsConnected()
}

func (c *BreakerClient) Shutdown() {
	c.inner.Shutdown()
}

// State returns the current state of the circuit.
func (c *BreakerClient) State() gobreaker.State {
	return c.cb.State()
}

func (c *BreakerClient) Counts() gobreaker.Counts {
	return c.cb.Counts()
}
