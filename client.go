package mcpipe

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pior/mcpipe/internal/bufpool"
)

// ConnState is the state of a Client. Transitions only go forward:
// StateConnecting -> StateConnected -> StateDisconnected.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var scratchBuffers = bufpool.New(256)

// Client pipelines requests over a single connection.
//
// Requests are written in the order Send is called and responses are matched to them
// by order. When the connection is lost, for any reason, every pending request fails
// with a KindClosed error carrying the reason, and so does every later Send.
// A Client never reconnects.
//
// A Client is safe for concurrent use.
type Client struct {
	id   string
	addr string
	conn net.Conn
	cfg  Config
	log  *zap.Logger

	// written under mu, read lock-free by IsConnected
	state    atomic.Int32
	closeErr atomic.Pointer[Error]

	// mu guards queue, outbox and state transitions
	mu     sync.Mutex
	queue  pendingQueue
	outbox []byte

	wake chan struct{}
	done chan struct{}

	stats statsCollector
}

// Connect dials addr and returns a connected Client.
//
// Dialing, and authentication when cfg.Auth is set, are bounded by cfg.ConnectTimeout
// and ctx. Errors are KindConnectTimeout or KindConnect.
func Connect(ctx context.Context, addr string, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, &Error{Kind: KindConnect, Reason: "invalid config", Err: err}
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, err := cfg.DialContext(ctx, "tcp", addr)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, dialError(ctx, err)
	}

	c := newClient(conn, addr, cfg, StateConnecting)

	if cfg.Auth != nil {
		if err := c.authenticate(ctx); err != nil {
			c.Shutdown()
			return nil, err
		}
	}

	if !c.markConnected() {
		return nil, &Error{Kind: KindConnect, Reason: "connection lost during setup", Err: c.Err()}
	}

	c.log.Debug("connected", zap.Stringer("protocol", cfg.Protocol))
	return c, nil
}

// NewClient returns a connected Client over an established connection.
// The Client owns conn and closes it on disconnect.
func NewClient(conn net.Conn, cfg Config) *Client {
	cfg = cfg.withDefaults()

	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}

	return newClient(conn, addr, cfg, StateConnected)
}

func newClient(conn net.Conn, addr string, cfg Config, state ConnState) *Client {
	id := uuid.NewString()

	c := &Client{
		id:   id,
		addr: addr,
		conn: conn,
		cfg:  cfg,
		log:  cfg.Logger.With(zap.String("conn_id", id), zap.String("addr", addr)),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	c.state.Store(int32(state))

	go c.readLoop()
	go c.writeLoop()
	if cfg.RequestTimeout > 0 {
		go c.watchdog()
	}

	return c
}

func dialError(ctx context.Context, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindConnectTimeout, Reason: "dial timed out", Err: err}
	}
	return &Error{Kind: KindConnect, Reason: "dial failed", Err: err}
}

func (c *Client) authenticate(ctx context.Context) error {
	auth := c.cfg.Auth

	resp, err := c.send(c.cfg.Protocol.authRequest(auth.Username, auth.Password), true).Wait(ctx)
	if err != nil {
		kind := KindConnect
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindConnectTimeout
		}
		return &Error{Kind: kind, Reason: "authentication failed", Err: err}
	}

	if err := checkAuthResponse(resp); err != nil {
		return &Error{Kind: KindConnect, Reason: "authentication rejected", Err: err}
	}

	return nil
}

func (c *Client) markConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ConnState(c.state.Load()) != StateConnecting {
		return false
	}
	c.state.Store(int32(StateConnected))
	return true
}

// Send queues req and returns its pending result. It never blocks.
//
// If the client is not connected, the returned Future is already failed with a
// KindClosed error and nothing is queued. If req cannot be encoded, the Future fails
// with a KindInvalidRequest error and the connection is not affected.
func (c *Client) Send(req Request) *Future {
	return c.send(req, false)
}

// send accepts requests while connecting only when setup is set.
func (c *Client) send(req Request, setup bool) *Future {
	if !c.accepts(setup) {
		c.stats.recordRejected()
		return failedFuture(c.rejection())
	}

	scratch := scratchBuffers.Get()
	defer scratchBuffers.Put(scratch)

	wire, err := encode(req, scratch)
	if err != nil {
		c.stats.recordRejected()
		return failedFuture(&Error{Kind: KindInvalidRequest, Reason: "cannot encode request", Err: err})
	}

	entry := &pendingEntry{
		req:      req,
		future:   newFuture(),
		enqueued: time.Now(),
	}

	c.mu.Lock()
	if !c.accepts(setup) {
		c.mu.Unlock()
		c.stats.recordRejected()
		return failedFuture(c.rejection())
	}
	c.queue.push(entry)
	c.outbox = append(c.outbox, wire...)
	c.stats.recordSent()
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}

	return entry.future
}

// encode serializes req into scratch, which keeps the capacity it grew to.
func encode(req Request, scratch *[]byte) ([]byte, error) {
	wire, err := req.AppendRequest((*scratch)[:0])
	if err != nil {
		return nil, err
	}
	*scratch = wire
	return wire, nil
}

func (c *Client) accepts(setup bool) bool {
	switch ConnState(c.state.Load()) {
	case StateConnected:
		return true
	case StateConnecting:
		return setup
	default:
		return false
	}
}

func (c *Client) rejection() *Error {
	if err := c.closeErr.Load(); err != nil {
		return err
	}
	return closedError("not connected", nil)
}

// IsConnected returns true until the connection is lost or shut down.
func (c *Client) IsConnected() bool {
	return ConnState(c.state.Load()) == StateConnected
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Shutdown closes the connection. Pending requests fail with reason "shutdown".
// It is safe to call Shutdown several times.
func (c *Client) Shutdown() {
	c.disconnect(closedError("shutdown", nil))
}

// Done returns a channel closed once the client is disconnected and every pending
// request has been failed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that disconnected the client, nil while connected.
func (c *Client) Err() error {
	if err := c.closeErr.Load(); err != nil {
		return err
	}
	return nil
}

// Stats returns a snapshot of the request counters.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

// Addr returns the server address, as dialed or as reported by the connection.
func (c *Client) Addr() string {
	return c.addr
}

// ID identifies the connection in logs.
func (c *Client) ID() string {
	return c.id
}

// pending returns the number of queued requests.
func (c *Client) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}
