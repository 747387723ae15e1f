package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pior/mcpipe"
	"github.com/pior/mcpipe/binprot"
	"github.com/pior/mcpipe/meta"
)

var setTTL time.Duration

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored under key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(cmd, protocol().Get(args[0]))
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a value under key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(cmd, protocol().Set(args[0], []byte(args[1]), setTTL))
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(cmd, protocol().Delete(args[0]))
	},
}

var incrCmd = &cobra.Command{
	Use:   "incr <key> [delta]",
	Short: "Increment the counter stored under key",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta := uint64(1)
		if len(args) == 2 {
			var err error
			if delta, err = strconv.ParseUint(args[1], 10, 64); err != nil {
				return fmt.Errorf("invalid delta %q: %w", args[1], err)
			}
		}
		return roundTrip(cmd, protocol().Incr(args[0], delta))
	},
}

func init() {
	setCmd.Flags().DurationVar(&setTTL, "ttl", 0, "expiration (0 never expires)")
}

func roundTrip(cmd *cobra.Command, req mcpipe.Request) error {
	ctx := cmd.Context()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	resp, err := s.raw.Send(req).Wait(ctx)
	if err != nil {
		return err
	}

	out, err := describe(resp)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// describe renders a response the way a user expects to read it: the value for hits,
// the status otherwise.
func describe(resp mcpipe.Response) (string, error) {
	switch r := resp.(type) {
	case *meta.Response:
		if r.Error != nil {
			return "", r.Error
		}
		if r.HasValue() {
			return string(r.Data), nil
		}
		return string(r.Status), nil
	case *binprot.Response:
		if r.IsMiss() {
			return "NOT_FOUND", nil
		}
		if err := r.Err(); err != nil {
			return "", err
		}
		if n, ok := r.Counter(); ok {
			return strconv.FormatUint(n, 10), nil
		}
		if r.Value != nil {
			return string(r.Value), nil
		}
		return r.Status.String(), nil
	default:
		return fmt.Sprintf("%v", resp), nil
	}
}
