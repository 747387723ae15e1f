package mcpipe

import "time"

// pendingEntry is a request accepted by Client.Send and waiting for its response.
// Whoever removes it from the queue (read loop or disconnect) resolves its future.
type pendingEntry struct {
	req      Request
	future   *Future
	enqueued time.Time
}

// compactThreshold is the number of popped slots tolerated at the front of the queue
// before it is compacted.
const compactThreshold = 64

// pendingQueue is the FIFO of in-flight requests of a connection.
//
// It is not safe for concurrent use on its own: Client.mu guards it together with the
// connection state, so that a push racing with a drain is either part of the drain or
// rejected by the state check.
type pendingQueue struct {
	entries []*pendingEntry
	head    int
}

func (q *pendingQueue) len() int {
	return len(q.entries) - q.head
}

func (q *pendingQueue) push(e *pendingEntry) {
	q.entries = append(q.entries, e)
}

// peek returns the oldest entry, nil if empty.
func (q *pendingQueue) peek() *pendingEntry {
	if q.len() == 0 {
		return nil
	}
	return q.entries[q.head]
}

// pop removes and returns the oldest entry, nil if empty.
func (q *pendingQueue) pop() *pendingEntry {
	if q.len() == 0 {
		return nil
	}

	e := q.entries[q.head]
	q.entries[q.head] = nil
	q.head++

	switch {
	case q.head == len(q.entries):
		q.entries = q.entries[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.entries):
		n := copy(q.entries, q.entries[q.head:])
		clear(q.entries[n:])
		q.entries = q.entries[:n]
		q.head = 0
	}

	return e
}

// popHead pops the oldest entry only if it is e.
// It returns false when the queue was drained since e was peeked.
func (q *pendingQueue) popHead(e *pendingEntry) bool {
	if q.peek() != e {
		return false
	}
	q.pop()
	return true
}

// drain removes and returns all entries, oldest first.
func (q *pendingQueue) drain() []*pendingEntry {
	drained := make([]*pendingEntry, q.len())
	copy(drained, q.entries[q.head:])
	q.entries = nil
	q.head = 0
	return drained
}
