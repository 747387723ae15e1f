package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pior/mcpipe"
	"github.com/pior/mcpipe/promstats"
)

type BenchFlags struct {
	Requests    int
	Concurrency int
	Keys        int
	ValueSize   int
	MetricsAddr string
}

var benchFlags BenchFlags

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Pipeline gets and sets through a single connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd, benchFlags)
	},
}

func init() {
	flags := benchCmd.Flags()
	flags.IntVar(&benchFlags.Requests, "requests", 100_000, "total number of requests")
	flags.IntVar(&benchFlags.Concurrency, "concurrency", 16, "number of concurrent senders")
	flags.IntVar(&benchFlags.Keys, "keys", 1000, "number of distinct keys")
	flags.IntVar(&benchFlags.ValueSize, "value-size", 100, "size of stored values in bytes")
	flags.StringVar(&benchFlags.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
}

type benchResult struct {
	ok      atomic.Int64
	failed  atomic.Int64
	latency atomic.Int64 // nanoseconds, summed
}

func runBench(cmd *cobra.Command, opts BenchFlags) error {
	if opts.Concurrency < 1 || opts.Requests < 1 || opts.Keys < 1 {
		return errors.New("requests, concurrency and keys must be positive")
	}

	ctx := cmd.Context()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr, s)
		if err != nil {
			return err
		}
		defer stop()
	}

	proto := protocol()
	value := make([]byte, opts.ValueSize)
	for i := range value {
		value[i] = 'x'
	}

	var result benchResult
	var next atomic.Int64

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for range opts.Concurrency {
		g.Go(func() error {
			for {
				i := next.Add(1) - 1
				if i >= int64(opts.Requests) {
					return nil
				}

				key := "mcpipe-bench-" + strconv.FormatInt(i%int64(opts.Keys), 10)
				req := proto.Get(key)
				if i%10 == 0 {
					req = proto.Set(key, value, time.Minute)
				}

				t := time.Now()
				if _, err := s.raw.Send(req).Wait(gctx); err != nil {
					result.failed.Add(1)
					if errors.Is(err, mcpipe.ErrUnavailable) || gctx.Err() != nil {
						return err
					}
					continue
				}
				result.latency.Add(int64(time.Since(t)))
				result.ok.Add(1)
			}
		})
	}
	err = g.Wait()
	elapsed := time.Since(start)

	report(cmd, opts, &result, elapsed, s)
	return err
}

func report(cmd *cobra.Command, opts BenchFlags, result *benchResult, elapsed time.Duration, s *session) {
	ok := result.ok.Load()
	var avg time.Duration
	if ok > 0 {
		avg = time.Duration(result.latency.Load() / ok)
	}

	stats := s.client.Stats()
	retries := s.retry.Stats()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Requests:     %d (concurrency %d)\n", opts.Requests, opts.Concurrency)
	fmt.Fprintf(w, "Succeeded:    %d\n", ok)
	fmt.Fprintf(w, "Failed:       %d\n", result.failed.Load())
	fmt.Fprintf(w, "Duration:     %v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Throughput:   %.0f req/s\n", float64(ok)/elapsed.Seconds())
	fmt.Fprintf(w, "Avg latency:  %v\n", avg)
	fmt.Fprintf(w, "Connection:   sent=%d completed=%d failed=%d rejected=%d\n",
		stats.Sent, stats.Completed, stats.Failed, stats.Rejected)
	fmt.Fprintf(w, "Retries:      %d (exhausted %d)\n", retries.Retries, retries.Exhausted)
}

// serveMetrics exposes the client counters until the returned function is called.
func serveMetrics(addr string, s *session) (func(), error) {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"addr": s.client.Addr()}
	registry.MustRegister(
		promstats.NewCollector(s.client, labels),
		promstats.NewRetryCollector(s.retry, labels),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
