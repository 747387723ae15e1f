// Package bufpool pools the scratch buffers requests are serialized into before being
// appended to a connection's outbox.
package bufpool

import (
	"sync"
)

// maxRetained is the largest buffer put back in the pool.
// Larger ones (big ms values) are left to the garbage collector.
const maxRetained = 64 << 10

// Pool is a sync.Pool of byte slices.
// Callers append to the slice and store the result back before Put, so the pool keeps
// the grown capacity.
type Pool struct {
	pool sync.Pool
}

// New returns a pool whose buffers start with initialSize bytes of capacity.
func New(initialSize int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, initialSize)
				return &buf
			},
		},
	}
}

// Get returns an empty buffer.
func (p *Pool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *Pool) Put(buf *[]byte) {
	if cap(*buf) > maxRetained {
		return
	}
	*buf = (*buf)[:0]
	p.pool.Put(buf)
}
