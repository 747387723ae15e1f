// Package promstats exposes client statistics as Prometheus metrics.
//
//	prometheus.MustRegister(promstats.NewCollector(client, prometheus.Labels{"server": addr}))
package promstats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pior/mcpipe"
)

const namespace = "mcpipe"

// StatsSource is implemented by *mcpipe.Client.
type StatsSource interface {
	Stats() mcpipe.Stats
}

// RetryStatsSource is implemented by *mcpipe.RetryingClient.
type RetryStatsSource interface {
	Stats() mcpipe.RetryStats
}

type clientCollector struct {
	source StatsSource

	sent        *prometheus.Desc
	completed   *prometheus.Desc
	failed      *prometheus.Desc
	rejected    *prometheus.Desc
	disconnects *prometheus.Desc
	inFlight    *prometheus.Desc
}

// NewCollector returns a collector reading the stats of source at every scrape.
func NewCollector(source StatsSource, constLabels prometheus.Labels) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels)
	}

	return &clientCollector{
		source:      source,
		sent:        desc("requests_sent_total", "Requests accepted and queued."),
		completed:   desc("requests_completed_total", "Requests resolved with a response."),
		failed:      desc("requests_failed_total", "Queued requests failed by a disconnect."),
		rejected:    desc("requests_rejected_total", "Requests refused without being queued."),
		disconnects: desc("disconnects_total", "Connections lost or shut down."),
		inFlight:    desc("requests_in_flight", "Requests queued and waiting for a response."),
	}
}

func (c *clientCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sent
	ch <- c.completed
	ch <- c.failed
	ch <- c.rejected
	ch <- c.disconnects
	ch <- c.inFlight
}

func (c *clientCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(s.Sent))
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(s.Completed))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.Failed))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.Rejected))
	ch <- prometheus.MustNewConstMetric(c.disconnects, prometheus.CounterValue, float64(s.Disconnects))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(s.InFlight))
}

type retryCollector struct {
	source RetryStatsSource

	calls     *prometheus.Desc
	attempts  *prometheus.Desc
	retries   *prometheus.Desc
	exhausted *prometheus.Desc
}

// NewRetryCollector returns a collector reading the stats of a retrying client.
func NewRetryCollector(source RetryStatsSource, constLabels prometheus.Labels) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "retry", name), help, nil, constLabels)
	}

	return &retryCollector{
		source:    source,
		calls:     desc("calls_total", "Calls to the retrying client."),
		attempts:  desc("attempts_total", "Attempts sent, retries included."),
		retries:   desc("retries_total", "Attempts after the first one."),
		exhausted: desc("exhausted_total", "Calls that failed after their last attempt."),
	}
}

func (c *retryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.calls
	ch <- c.attempts
	ch <- c.retries
	ch <- c.exhausted
}

func (c *retryCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.calls, prometheus.CounterValue, float64(s.Calls))
	ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(s.Attempts))
	ch <- prometheus.MustNewConstMetric(c.retries, prometheus.CounterValue, float64(s.Retries))
	ch <- prometheus.MustNewConstMetric(c.exhausted, prometheus.CounterValue, float64(s.Exhausted))
}
