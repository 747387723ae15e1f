package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pior/mcpipe"
)

// GlobalFlags are the flags shared by every command.
type GlobalFlags struct {
	Addr           string
	Binary         bool
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Retries        int
	Breaker        bool
	Username       string
	Password       string
	LogLevel       string
	LogFile        string
}

var (
	globalFlags GlobalFlags
	logger      *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "mcpipe",
	Short:         "Pipelined memcached client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(globalFlags.LogLevel, globalFlags.LogFile)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command and exits on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	defaultAddr := os.Getenv("MCPIPE_ADDR")
	if defaultAddr == "" {
		defaultAddr = "localhost:11211"
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.Addr, "addr", defaultAddr, "server address (env MCPIPE_ADDR)")
	flags.BoolVar(&globalFlags.Binary, "binary", false, "use the binary protocol instead of the meta text protocol")
	flags.DurationVar(&globalFlags.ConnectTimeout, "connect-timeout", mcpipe.DefaultConnectTimeout, "dial and authentication timeout")
	flags.DurationVar(&globalFlags.RequestTimeout, "request-timeout", 0, "close the connection when a response takes longer (0 disables)")
	flags.IntVar(&globalFlags.Retries, "retries", mcpipe.DefaultMaxAttempts, "attempts per idempotent request")
	flags.BoolVar(&globalFlags.Breaker, "breaker", false, "stop sending after repeated connection failures")
	flags.StringVar(&globalFlags.Username, "username", "", "authenticate with this username")
	flags.StringVar(&globalFlags.Password, "password", "", "password for --username")
	flags.StringVar(&globalFlags.LogLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.StringVar(&globalFlags.LogFile, "log-file", "", "write logs to this file, rotated (default stderr)")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(incrCmd)
	rootCmd.AddCommand(benchCmd)
}

func protocol() mcpipe.Protocol {
	if globalFlags.Binary {
		return mcpipe.ProtocolBinary
	}
	return mcpipe.ProtocolText
}

// session is a connected client and the decorated RawClient requests go through.
type session struct {
	client *mcpipe.Client
	retry  *mcpipe.RetryingClient
	raw    mcpipe.RawClient
}

func connect(ctx context.Context) (*session, error) {
	cfg := mcpipe.Config{
		ConnectTimeout: globalFlags.ConnectTimeout,
		RequestTimeout: globalFlags.RequestTimeout,
		Protocol:       protocol(),
		Logger:         logger,
	}
	if globalFlags.Username != "" {
		cfg.Auth = &mcpipe.Auth{Username: globalFlags.Username, Password: globalFlags.Password}
	}

	client, err := mcpipe.Connect(ctx, globalFlags.Addr, cfg)
	if err != nil {
		return nil, err
	}

	s := &session{client: client, raw: client}
	if globalFlags.Breaker {
		s.raw = mcpipe.NewBreakerClient(s.raw, mcpipe.DefaultBreakerSettings(globalFlags.Addr, logger))
	}
	s.retry = mcpipe.NewRetryingClient(s.raw, mcpipe.WithMaxAttempts(globalFlags.Retries), mcpipe.WithLogger(logger))
	s.raw = s.retry

	return s, nil
}

func (s *session) close() {
	s.raw.Shutdown()
}
