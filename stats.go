package mcpipe

import (
	"sync/atomic"
)

// Stats contains statistics about a Client.
//
// For Prometheus integration (see package promstats), these are exposed as:
//   - Counters: Sent, Completed, Failed, Rejected, Disconnects
//   - Gauge: InFlight
type Stats struct {
	Sent        uint64 // Requests accepted and queued
	Completed   uint64 // Requests resolved with a response
	Failed      uint64 // Queued requests resolved with an error (drained on disconnect)
	Rejected    uint64 // Requests refused without being queued (not connected, invalid)
	Disconnects uint64 // 0 or 1 for a Client, summed by aggregators
	InFlight    int64  // Requests queued and not yet resolved
}

// RetryStats contains statistics about a RetryingClient.
type RetryStats struct {
	Calls     uint64 // Calls to Send
	Attempts  uint64 // Sends to the inner client, retries included
	Retries   uint64 // Attempts after the first one
	Exhausted uint64 // Calls that failed with a retryable error after the last attempt
}

// statsCollector provides internal methods for updating client stats.
type statsCollector struct {
	sent        atomic.Uint64
	completed   atomic.Uint64
	failed      atomic.Uint64
	rejected    atomic.Uint64
	disconnects atomic.Uint64
	inFlight    atomic.Int64
}

func (c *statsCollector) recordSent() {
	c.sent.Add(1)
	c.inFlight.Add(1)
}

func (c *statsCollector) recordCompleted() {
	c.completed.Add(1)
	c.inFlight.Add(-1)
}

func (c *statsCollector) recordFailed(n int) {
	c.failed.Add(uint64(n))
	c.inFlight.Add(-int64(n))
}

func (c *statsCollector) recordRejected() {
	c.rejected.Add(1)
}

func (c *statsCollector) recordDisconnect() {
	c.disconnects.Add(1)
}

func (c *statsCollector) snapshot() Stats {
	return Stats{
		Sent:        c.sent.Load(),
		Completed:   c.completed.Load(),
		Failed:      c.failed.Load(),
		Rejected:    c.rejected.Load(),
		Disconnects: c.disconnects.Load(),
		InFlight:    c.inFlight.Load(),
	}
}

type retryStatsCollector struct {
	calls     atomic.Uint64
	attempts  atomic.Uint64
	retries   atomic.Uint64
	exhausted atomic.Uint64
}

func (c *retryStatsCollector) recordCall() {
	c.calls.Add(1)
}

func (c *retryStatsCollector) recordAttempt(n int) {
	c.attempts.Add(1)
	if n > 1 {
		c.retries.Add(1)
	}
}

func (c *retryStatsCollector) recordExhausted() {
	c.exhausted.Add(1)
}

func (c *retryStatsCollector) snapshot() RetryStats {
	return RetryStats{
		Calls:     c.calls.Load(),
		Attempts:  c.attempts.Load(),
		Retries:   c.retries.Load(),
		Exhausted: c.exhausted.Load(),
	}
}
