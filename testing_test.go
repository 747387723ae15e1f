package mcpipe

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pior/mcpipe/binprot"
	"github.com/pior/mcpipe/internal/testutils"
)

const testWait = time.Second

// newPipeClient returns a Client talking to handler over net.Pipe.
func newPipeClient(t testing.TB, handler testutils.Handler, cfg Config) *Client {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t)
	}

	c := NewClient(testutils.NewPipe(t, handler), cfg)
	t.Cleanup(c.Shutdown)
	return c
}

// connectClient connects to a loopback server served by handler.
func connectClient(t testing.TB, handler testutils.Handler, cfg Config) *Client {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t)
	}

	c, err := Connect(context.Background(), testutils.NewListener(t, handler), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

// await returns the result of f, failing the test if it is not resolved within testWait.
func await(t testing.TB, f *Future) (Response, error) {
	t.Helper()

	select {
	case <-f.Done():
		return f.Get()
	case <-time.After(testWait):
		t.Fatalf("future not resolved within %s", testWait)
		return nil, nil
	}
}

func awaitDisconnect(t testing.TB, c *Client) {
	t.Helper()

	select {
	case <-c.Done():
	case <-time.After(testWait):
		t.Fatalf("client still %s after %s", c.State(), testWait)
	}
}

// noOpServer answers every line with MN after delay, and hangs up after limit lines.
// A negative limit never hangs up.
func noOpServer(delay time.Duration, limit int) testutils.Handler {
	return func(conn net.Conn) {
		r := bufio.NewReader(conn)
		for n := 0; limit < 0 || n < limit; n++ {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
			if delay > 0 {
				time.Sleep(delay)
			}
			if _, err := conn.Write([]byte("MN\r\n")); err != nil {
				return
			}
		}
	}
}

// testRequest is a Request with a fixed wire form, answered by a single line.
type testRequest struct {
	wire       string
	idempotent bool
}

func (r *testRequest) AppendRequest(dst []byte) ([]byte, error) {
	return append(dst, r.wire...), nil
}

func (r *testRequest) ParseResponse(window []byte) (int, Response, error) {
	for i := 0; i+1 < len(window); i++ {
		if window[i] == '\r' && window[i+1] == '\n' {
			return i + 2, string(window[:i]), nil
		}
	}
	return 0, nil, nil
}

func (r *testRequest) Idempotent() bool { return r.idempotent }
func (r *testRequest) Opaque() uint32   { return 0 }

// binaryServer answers every binary protocol request with the packet built by respond.
func binaryServer(respond func(hdr, body []byte) []byte) func(conn net.Conn) {
	return func(conn net.Conn) {
		for {
			hdr := make([]byte, binprot.HeaderLen)
			if _, err := io.ReadFull(conn, hdr); err != nil {
				return
			}
			body := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
			if _, err := conn.Write(respond(hdr, body)); err != nil {
				return
			}
		}
	}
}

// binaryResponse builds a response packet echoing the opcode and opaque of hdr.
func binaryResponse(hdr []byte, status binprot.Status, value []byte) []byte {
	resp := make([]byte, binprot.HeaderLen, binprot.HeaderLen+len(value))
	resp[0] = binprot.MagicResponse
	resp[1] = hdr[1]
	binary.BigEndian.PutUint16(resp[6:8], uint16(status))
	binary.BigEndian.PutUint32(resp[8:12], uint32(len(value)))
	copy(resp[12:16], hdr[12:16])
	return append(resp, value...)
}
