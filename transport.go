package mcpipe

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// maxRetainedOutbox is the largest write buffer kept between two writes.
const maxRetainedOutbox = 1 << 20

var errUnsolicited = errors.New("unsolicited data from server")

// writeLoop flushes the outbox to the socket. Send wakes it after appending.
func (c *Client) writeLoop() {
	var buf []byte

	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}

		c.mu.Lock()
		buf, c.outbox = c.outbox, buf[:0]
		c.mu.Unlock()

		if len(buf) == 0 {
			continue
		}

		if c.cfg.WriteTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		}

		if _, err := c.conn.Write(buf); err != nil {
			c.disconnect(closedError("write failed", err))
			return
		}

		if cap(buf) > maxRetainedOutbox {
			buf = nil
		}
	}
}

// readLoop reads responses and hands them to the requests at the head of the queue.
func (c *Client) readLoop() {
	buf := make([]byte, 0, c.cfg.ReadBufferSize)

	for {
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), 2*cap(buf))
			copy(grown, buf)
			buf = grown
		}

		n, err := c.conn.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]

		if n > 0 {
			consumed, perr := c.dispatch(buf)
			if perr != nil {
				c.disconnect(perr)
				return
			}
			buf = buf[:copy(buf, buf[consumed:])]
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				c.disconnect(closedError("connection closed by peer", nil))
			} else {
				c.disconnect(closedError("read failed", err))
			}
			return
		}
	}
}

// dispatch parses as many responses as possible from window and resolves their
// requests. It returns the number of bytes consumed.
func (c *Client) dispatch(window []byte) (int, *Error) {
	consumed := 0

	for consumed < len(window) {
		c.mu.Lock()
		head := c.queue.peek()
		state := ConnState(c.state.Load())
		c.mu.Unlock()

		if head == nil {
			if state == StateDisconnected {
				return consumed, nil
			}
			return consumed, protocolFailure(errUnsolicited)
		}

		remaining := len(window) - consumed
		n, resp, err := head.req.ParseResponse(window[consumed:])
		if err != nil {
			return consumed, protocolFailure(err)
		}
		if n == 0 {
			return consumed, nil
		}
		if n < 0 || n > remaining {
			return consumed, protocolFailure(fmt.Errorf("parser consumed %d of %d bytes", n, remaining))
		}
		consumed += n

		c.mu.Lock()
		popped := c.queue.popHead(head)
		if popped {
			c.stats.recordCompleted()
		}
		c.mu.Unlock()

		// Lost the race with disconnect, which resolves every drained entry.
		if !popped {
			return consumed, nil
		}

		head.future.resolve(resp, nil)
	}

	return consumed, nil
}

// watchdog disconnects when the oldest pending request is older than RequestTimeout.
// It never fires early and may fire up to one tick late.
func (c *Client) watchdog() {
	interval := max(c.cfg.RequestTimeout/4, 10*time.Millisecond)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		head := c.queue.peek()
		c.mu.Unlock()

		if head != nil && time.Since(head.enqueued) > c.cfg.RequestTimeout {
			c.disconnect(closedError("request timeout", nil))
			return
		}
	}
}

// disconnect moves the client to StateDisconnected and fails every pending request
// with reason. Only the first call has an effect.
func (c *Client) disconnect(reason *Error) {
	c.mu.Lock()
	if ConnState(c.state.Load()) == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.closeErr.Store(reason)
	c.state.Store(int32(StateDisconnected))
	drained := c.queue.drain()
	c.outbox = nil
	c.stats.recordFailed(len(drained))
	c.stats.recordDisconnect()
	c.mu.Unlock()

	_ = c.conn.Close()

	for _, e := range drained {
		e.future.resolve(nil, reason)
	}

	close(c.done)

	fields := []zap.Field{zap.String("reason", reason.Reason), zap.Int("pending", len(drained))}
	if reason.Err != nil {
		fields = append(fields, zap.Error(reason.Err))
	}
	if reason.Reason == "shutdown" {
		c.log.Debug("disconnected", fields...)
	} else {
		c.log.Warn("disconnected", fields...)
	}
}
