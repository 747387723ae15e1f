// Package testutils provides in-process memcached doubles for tests.
package testutils

import (
	"io"
	"net"
	"sync"
	"testing"
)

// Handler serves the server side of one connection.
// The connection is closed when it returns.
type Handler func(conn net.Conn)

// NewPipe returns the client side of an in-memory connection served by handler.
// net.Pipe is synchronous: a handler that stops reading blocks the client writes.
func NewPipe(t testing.TB, handler Handler) net.Conn {
	t.Helper()

	client, server := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer server.Close()
		handler(server)
	}()

	t.Cleanup(func() {
		client.Close()
		server.Close()
		<-done
	})

	return client
}

// NewListener starts a TCP server on a loopback port and returns its address.
// Every accepted connection is served by handler in its own goroutine.
func NewListener(t testing.TB, handler Handler) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	var (
		mu    sync.Mutex
		conns []net.Conn
		wg    sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer conn.Close()
				handler(conn)
			}()
		}
	}()

	t.Cleanup(func() {
		listener.Close()
		mu.Lock()
		for _, conn := range conns {
			conn.Close()
		}
		mu.Unlock()
		wg.Wait()
	})

	return listener.Addr().String()
}

// Silent reads and discards everything and never answers.
func Silent(conn net.Conn) {
	_, _ = io.Copy(io.Discard, conn)
}

// Hangup closes the connection as soon as it is accepted.
func Hangup(conn net.Conn) {}
