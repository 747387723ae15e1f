package mcpipe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pior/mcpipe/binprot"
	"github.com/pior/mcpipe/internal/testutils"
	"github.com/pior/mcpipe/meta"
)

func TestClient_SetGetDeleteIncr(t *testing.T) {
	server := testutils.NewMetaServer()
	c := connectClient(t, server.Serve, Config{})

	require.True(t, c.IsConnected())
	require.Equal(t, StateConnected, c.State())
	require.NotEmpty(t, c.ID())
	require.NotEmpty(t, c.Addr())

	resp, err := await(t, c.Send(ProtocolText.Set("greeting", []byte("hello"), time.Minute)))
	require.NoError(t, err)
	require.Equal(t, meta.StatusHD, resp.(*meta.Response).Status)

	resp, err = await(t, c.Send(ProtocolText.Get("greeting")))
	require.NoError(t, err)
	require.Equal(t, "hello", string(resp.(*meta.Response).Data))

	resp, err = await(t, c.Send(ProtocolText.Delete("greeting")))
	require.NoError(t, err)
	require.Equal(t, meta.StatusHD, resp.(*meta.Response).Status)

	resp, err = await(t, c.Send(ProtocolText.Get("greeting")))
	require.NoError(t, err)
	require.True(t, resp.(*meta.Response).IsMiss())

	server.Set("counter", []byte("41"))
	resp, err = await(t, c.Send(ProtocolText.Incr("counter", 1)))
	require.NoError(t, err)
	require.Equal(t, "42", string(resp.(*meta.Response).Data))

	resp, err = await(t, c.Send(ProtocolText.NoOp()))
	require.NoError(t, err)
	require.Equal(t, meta.StatusMN, resp.(*meta.Response).Status)
}

func TestClient_FIFOCorrelation(t *testing.T) {
	server := testutils.NewMetaServer()
	for i := range 100 {
		server.Set(fmt.Sprintf("key%d", i), []byte(fmt.Sprintf("value%d", i)))
	}
	c := connectClient(t, server.Serve, Config{})

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			futures := make([]*Future, 200)
			keys := make([]int, 200)
			for i := range futures {
				keys[i] = rand.IntN(100)
				futures[i] = c.Send(ProtocolText.Get(fmt.Sprintf("key%d", keys[i])))
			}

			for i, f := range futures {
				resp, err := f.Wait(context.Background())
				if err != nil {
					return err
				}
				if got, want := string(resp.(*meta.Response).Data), fmt.Sprintf("value%d", keys[i]); got != want {
					return fmt.Errorf("request %d: got %q, want %q", i, got, want)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	stats := c.Stats()
	require.Equal(t, uint64(1600), stats.Sent)
	require.Equal(t, uint64(1600), stats.Completed)
	require.Zero(t, stats.InFlight)
	require.Zero(t, c.pending())
}

func TestClient_ResponsesSplitAcrossReads(t *testing.T) {
	c := newPipeClient(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		_, _ = r.ReadString('\n')
		_, _ = r.ReadString('\n')

		// one byte at a time, second response glued to the first
		for _, b := range []byte("VA 5\r\nhello\r\nEN\r\n") {
			if _, err := conn.Write([]byte{b}); err != nil {
				return
			}
		}
		_, _ = r.ReadString('\n')
	}, Config{ReadBufferSize: 4})

	first := c.Send(ProtocolText.Get("a"))
	second := c.Send(ProtocolText.Get("b"))

	resp, err := await(t, first)
	require.NoError(t, err)
	require.Equal(t, "hello", string(resp.(*meta.Response).Data))

	resp, err = await(t, second)
	require.NoError(t, err)
	require.Equal(t, meta.StatusEN, resp.(*meta.Response).Status)
}

func TestClient_NoStuckRequestsAfterInvalidRequest(t *testing.T) {
	c := connectClient(t, testutils.NewMetaServer().Serve, Config{})

	var before, after []*Future
	for i := range 50 {
		before = append(before, c.Send(ProtocolText.Get(fmt.Sprintf("key%d", i))))
	}
	invalid := c.Send(MetaRequest(meta.NewRequest("zz", "key", nil), true))
	for i := range 50 {
		after = append(after, c.Send(ProtocolText.Get(fmt.Sprintf("key%d", i))))
	}

	for _, f := range before {
		resp, err := await(t, f)
		require.NoError(t, err)
		require.True(t, resp.(*meta.Response).IsMiss())
	}

	_, err := await(t, invalid)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, err, ErrProtocol)
	require.Equal(t, "protocol error", Reason(err))

	for _, f := range after {
		_, err := await(t, f)
		require.ErrorIs(t, err, ErrClosed)
	}

	awaitDisconnect(t, c)
	require.False(t, c.IsConnected())
	require.Zero(t, c.pending())
}

func TestClient_ServerErrorIsAResponse(t *testing.T) {
	c := newPipeClient(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
			if _, err := conn.Write([]byte("SERVER_ERROR out of memory\r\n")); err != nil {
				return
			}
		}
	}, Config{})

	resp, err := await(t, c.Send(ProtocolText.Delete("key")))
	require.NoError(t, err)

	var replyErr *meta.ReplyError
	require.ErrorAs(t, resp.(*meta.Response).Error, &replyErr)
	require.Equal(t, meta.CodeServerError, replyErr.Code)
	require.True(t, c.IsConnected())
}

func TestClient_RequestTimeout(t *testing.T) {
	for _, timeout := range []time.Duration{5 * time.Millisecond, 30 * time.Millisecond, 100 * time.Millisecond} {
		t.Run(timeout.String(), func(t *testing.T) {
			c := newPipeClient(t, testutils.Silent, Config{RequestTimeout: timeout})

			start := time.Now()
			_, err := await(t, c.Send(ProtocolText.Get("key")))

			require.ErrorIs(t, err, ErrClosed)
			require.Equal(t, "request timeout", Reason(err))
			require.GreaterOrEqual(t, time.Since(start), timeout)
			require.False(t, c.IsConnected())
		})
	}
}

func TestClient_RequestTimeoutSparesSlowResponses(t *testing.T) {
	c := newPipeClient(t, noOpServer(10*time.Millisecond, -1), Config{RequestTimeout: 40 * time.Millisecond})

	for i := range 20 {
		start := time.Now()
		_, err := await(t, c.Send(ProtocolText.NoOp()))
		require.NoError(t, err, "request %d failed after %s", i, time.Since(start))
	}

	require.True(t, c.IsConnected())
}

func TestClient_RequestTimeoutIgnoresIdleConnection(t *testing.T) {
	server := testutils.NewMetaServer()
	c := connectClient(t, server.Serve, Config{RequestTimeout: 100 * time.Millisecond})

	for range 5 {
		_, err := await(t, c.Send(ProtocolText.NoOp()))
		require.NoError(t, err)
		time.Sleep(60 * time.Millisecond)
	}

	require.True(t, c.IsConnected())
}

func TestClient_FastFailAfterShutdown(t *testing.T) {
	c := newPipeClient(t, testutils.Silent, Config{})
	c.Shutdown()
	awaitDisconnect(t, c)

	for range 10 {
		f := c.Send(ProtocolText.Get("key"))
		require.True(t, f.Ready(), "future must be failed synchronously")

		_, err := f.Get()
		require.ErrorIs(t, err, ErrClosed)
		require.Equal(t, "shutdown", Reason(err))
		require.Zero(t, c.pending())
	}

	require.Equal(t, uint64(10), c.Stats().Rejected)
	require.Zero(t, c.Stats().Sent)

	require.NotPanics(t, c.Shutdown)
}

func TestClient_ShutdownFailsPendingRequests(t *testing.T) {
	c := newPipeClient(t, testutils.Silent, Config{})

	var futures []*Future
	for i := range 20 {
		futures = append(futures, c.Send(ProtocolText.Get(fmt.Sprintf("key%d", i))))
	}

	c.Shutdown()

	for _, f := range futures {
		_, err := await(t, f)
		require.ErrorIs(t, err, ErrClosed)
		require.Equal(t, "shutdown", Reason(err))
	}

	stats := c.Stats()
	require.Equal(t, uint64(20), stats.Failed)
	require.Equal(t, uint64(1), stats.Disconnects)
	require.Zero(t, stats.InFlight)
}

func TestClient_SendsRacingDisconnect(t *testing.T) {
	const senders, perSender = 8, 100

	tests := []struct {
		name          string
		handler       testutils.Handler
		shutdownAfter int64
	}{
		{"shutdown", noOpServer(0, -1), 200},
		{"peer hangup", noOpServer(0, 150), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newPipeClient(t, tt.handler, Config{})

			var sent atomic.Int64
			futures := make([][]*Future, senders)

			var g errgroup.Group
			for i := range senders {
				g.Go(func() error {
					for range perSender {
						futures[i] = append(futures[i], c.Send(ProtocolText.NoOp()))
						if sent.Add(1) == tt.shutdownAfter {
							go c.Shutdown()
						}
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			succeeded := 0
			for _, fs := range futures {
				for _, f := range fs {
					_, err := await(t, f)
					if err != nil {
						require.ErrorIs(t, err, ErrClosed)
						continue
					}
					succeeded++
				}
			}

			awaitDisconnect(t, c)

			stats := c.Stats()
			require.Equal(t, stats.Sent, stats.Completed+stats.Failed)
			require.Equal(t, uint64(senders*perSender), stats.Sent+stats.Rejected)
			require.Equal(t, uint64(succeeded), stats.Completed)
			require.Zero(t, stats.InFlight)
		})
	}
}

func TestClient_MonotonicDisconnect(t *testing.T) {
	c := newPipeClient(t, testutils.Hangup, Config{})

	awaitDisconnect(t, c)
	require.Equal(t, "connection closed by peer", Reason(c.Err()))

	for range 10 {
		require.False(t, c.IsConnected())
		require.Equal(t, StateDisconnected, c.State())

		_, err := c.Send(ProtocolText.NoOp()).Get()
		require.ErrorIs(t, err, ErrClosed)
		require.Equal(t, "connection closed by peer", Reason(err))
	}
}

func TestClient_UnsolicitedData(t *testing.T) {
	c := newPipeClient(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("HD\r\n"))
		testutils.Silent(conn)
	}, Config{})

	awaitDisconnect(t, c)
	require.ErrorIs(t, c.Err(), ErrClosed)
	require.ErrorIs(t, c.Err(), ErrProtocol)
}

func TestClient_InvalidRequestIsRejectedLocally(t *testing.T) {
	c := newPipeClient(t, testutils.Silent, Config{})

	for _, req := range []Request{
		ProtocolText.Get(""),
		ProtocolText.Get("with space"),
		MetaRequest(meta.NewRequest(meta.CmdGet, "key", nil).AddQuiet(), true),
		ProtocolBinary.Delete(""),
	} {
		f := c.Send(req)
		require.True(t, f.Ready())

		_, err := f.Get()
		require.ErrorIs(t, err, ErrInvalidRequest)
		require.False(t, IsRetryable(err))
	}

	require.True(t, c.IsConnected())
	require.Zero(t, c.pending())
	require.Equal(t, uint64(4), c.Stats().Rejected)
}

func TestClient_WaitTimeoutLeavesRequestInFlight(t *testing.T) {
	release := make(chan struct{})
	c := newPipeClient(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		if _, err := r.ReadString('\n'); err != nil {
			return
		}
		<-release
		_, _ = conn.Write([]byte("MN\r\n"))
		testutils.Silent(conn)
	}, Config{})

	f := c.Send(ProtocolText.NoOp())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, ErrRequestTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, c.IsConnected())
	require.Equal(t, 1, c.pending())

	close(release)

	resp, err := await(t, f)
	require.NoError(t, err)
	require.Equal(t, meta.StatusMN, resp.(*meta.Response).Status)
}

func TestClient_CustomRequest(t *testing.T) {
	c := newPipeClient(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if _, err := conn.Write([]byte("echo " + line)); err != nil {
				return
			}
		}
	}, Config{})

	resp, err := await(t, c.Send(&testRequest{wire: "ping\r\n"}))
	require.NoError(t, err)
	require.Equal(t, "echo ping", resp)
}

func TestClient_Binary(t *testing.T) {
	c := newPipeClient(t, binaryServer(func(hdr, body []byte) []byte {
		switch binprot.Opcode(hdr[1]) {
		case binprot.OpGet:
			return binaryResponse(hdr, binprot.StatusKeyNotFound, []byte("Not found"))
		default:
			return binaryResponse(hdr, binprot.StatusOK, nil)
		}
	}), Config{Protocol: ProtocolBinary})

	get := c.Send(ProtocolBinary.Get("missing"))
	noop := c.Send(ProtocolBinary.NoOp())

	resp, err := await(t, get)
	require.NoError(t, err)
	require.True(t, resp.(*binprot.Response).IsMiss())

	resp, err = await(t, noop)
	require.NoError(t, err)
	require.NoError(t, resp.(*binprot.Response).Err())
}

func TestClient_BinaryOpaqueMismatch(t *testing.T) {
	c := newPipeClient(t, binaryServer(func(hdr, body []byte) []byte {
		resp := binaryResponse(hdr, binprot.StatusOK, nil)
		resp[15]++
		return resp
	}), Config{Protocol: ProtocolBinary})

	_, err := await(t, c.Send(ProtocolBinary.NoOp()))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, err, ErrProtocol)
	require.ErrorContains(t, err, "opaque mismatch")
}

func TestConnect_Timeout(t *testing.T) {
	var dials atomic.Int32
	cfg := Config{
		ConnectTimeout: 100 * time.Millisecond,
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			dials.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	start := time.Now()
	c, err := Connect(context.Background(), "10.255.255.1:11211", cfg)
	elapsed := time.Since(start)

	require.Nil(t, c)
	require.ErrorIs(t, err, ErrConnectTimeout)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, time.Second)
	require.Equal(t, int32(1), dials.Load())
}

func TestConnect_Refused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	c, err := Connect(context.Background(), addr, Config{})
	require.Nil(t, c)
	require.ErrorIs(t, err, ErrConnect)
	require.NotErrorIs(t, err, ErrConnectTimeout)
}

func TestConnect_InvalidConfig(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1:1", Config{RequestTimeout: -1})
	require.ErrorIs(t, err, ErrConnect)
	require.Equal(t, "invalid config", Reason(err))
}

func TestConnect_TextAuth(t *testing.T) {
	server := testutils.NewMetaServer()
	server.Credentials = "user secret"
	addr := testutils.NewListener(t, server.Serve)

	c, err := Connect(context.Background(), addr, Config{Auth: &Auth{Username: "user", Password: "secret"}})
	require.NoError(t, err)
	defer c.Shutdown()

	_, err = await(t, c.Send(ProtocolText.NoOp()))
	require.NoError(t, err)
}

func TestConnect_AuthFailureClosesSocket(t *testing.T) {
	server := testutils.NewMetaServer()
	server.Credentials = "user secret"
	addr := testutils.NewListener(t, server.Serve)

	var conn net.Conn
	cfg := Config{
		Auth: &Auth{Username: "user", Password: "wrong"},
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			var d net.Dialer
			c, err := d.DialContext(ctx, network, address)
			conn = c
			return c, err
		},
	}

	c, err := Connect(context.Background(), addr, cfg)
	require.Nil(t, c)
	require.ErrorIs(t, err, ErrConnect)
	require.NotNil(t, conn)

	_, err = conn.Write([]byte("mn\r\n"))
	require.ErrorIs(t, err, net.ErrClosed)
}

func TestConnect_BinaryAuth(t *testing.T) {
	handler := binaryServer(func(hdr, body []byte) []byte {
		if binprot.Opcode(hdr[1]) == binprot.OpSASLAuth {
			if string(body) != "PLAIN\x00user\x00secret" {
				return binaryResponse(hdr, binprot.StatusAuthError, []byte("Auth failure"))
			}
			return binaryResponse(hdr, binprot.StatusOK, []byte("Authenticated"))
		}
		return binaryResponse(hdr, binprot.StatusOK, nil)
	})
	addr := testutils.NewListener(t, handler)

	c, err := Connect(context.Background(), addr, Config{
		Protocol: ProtocolBinary,
		Auth:     &Auth{Username: "user", Password: "secret"},
	})
	require.NoError(t, err)
	c.Shutdown()

	_, err = Connect(context.Background(), addr, Config{
		Protocol: ProtocolBinary,
		Auth:     &Auth{Username: "user", Password: "wrong"},
	})
	require.ErrorIs(t, err, ErrConnect)
	require.Equal(t, "authentication rejected", Reason(err))

	var statusErr *binprot.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, binprot.StatusAuthError, statusErr.Status)
}

func TestConnect_AuthTimeout(t *testing.T) {
	addr := testutils.NewListener(t, testutils.Silent)

	start := time.Now()
	_, err := Connect(context.Background(), addr, Config{
		ConnectTimeout: 100 * time.Millisecond,
		Auth:           &Auth{Username: "user", Password: "secret"},
	})

	require.ErrorIs(t, err, ErrConnectTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestEncodeKeepsGrownScratch(t *testing.T) {
	scratch := make([]byte, 0, 16)

	big := ProtocolText.Set("key", bytes.Repeat([]byte("x"), 1024), 0)
	wire, err := encode(big, &scratch)
	require.NoError(t, err)
	require.Greater(t, len(wire), 1024)
	require.Equal(t, wire, scratch)
	grown := cap(scratch)

	_, err = encode(ProtocolText.Get("key"), &scratch)
	require.NoError(t, err)
	require.Equal(t, grown, cap(scratch), "small requests reuse the grown buffer")

	_, err = encode(ProtocolText.Get("bad key"), &scratch)
	require.Error(t, err)
	require.Equal(t, grown, cap(scratch))
}
