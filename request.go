package mcpipe

// Response is the decoded reply to a Request.
// Its concrete type is chosen by the Request that parsed it
// (*meta.Response for ProtocolText, *binprot.Response for ProtocolBinary).
type Response = any

// Request is a single operation sent on a pipelined connection.
//
// The client never interprets a request beyond this contract. Implementations must be
// immutable: the same value may be sent several times (RetryingClient does so), possibly
// concurrently.
type Request interface {
	// AppendRequest appends the wire form of the request to dst.
	// An error rejects the request before anything is written.
	AppendRequest(dst []byte) ([]byte, error)

	// ParseResponse parses the response to this request from the beginning of window.
	//
	// It follows the bufio.SplitFunc convention:
	//   - 0, nil, nil: the window does not hold a complete response yet
	//   - n, resp, nil: a response was parsed from the first n bytes
	//   - _, _, err: the stream is malformed, the connection will be closed
	//
	// The returned response must not retain window, which is reused.
	ParseResponse(window []byte) (n int, resp Response, err error)

	// Idempotent returns true if sending the request twice has the same effect as
	// sending it once. RetryingClient only retries idempotent requests by default.
	Idempotent() bool

	// Opaque returns the correlation token carried on the wire, 0 if none.
	// Correlation is done by order; codecs that echo the token verify it while parsing.
	Opaque() uint32
}

// RawClient is the capability set shared by Client and its decorators.
type RawClient interface {
	// Send queues req and returns its pending result. It never blocks.
	Send(req Request) *Future

	// IsConnected returns false once the underlying connection is gone for good.
	IsConnected() bool

	// Shutdown closes the underlying connection and fails all pending requests.
	Shutdown()
}
