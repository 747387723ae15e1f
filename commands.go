package mcpipe

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pior/mcpipe/binprot"
	"github.com/pior/mcpipe/meta"
)

var errQuietRequest = errors.New("quiet requests are not supported on a pipelined connection")

// metaRequest adapts a meta protocol request to the Request contract.
type metaRequest struct {
	req        *meta.Request
	idempotent bool
}

// MetaRequest wraps a meta protocol request. Its responses are *meta.Response.
//
// A CLIENT_ERROR or ERROR reply closes the connection. A SERVER_ERROR reply is
// delivered as a response with Error set.
// Quiet requests (q flag) are rejected: a suppressed reply would shift every later
// response onto the wrong request.
func MetaRequest(req *meta.Request, idempotent bool) Request {
	return &metaRequest{req: req, idempotent: idempotent}
}

func (r *metaRequest) AppendRequest(dst []byte) ([]byte, error) {
	if r.req.HasFlag(meta.FlagQuiet) {
		return dst, errQuietRequest
	}
	return meta.AppendRequest(dst, r.req)
}

func (r *metaRequest) ParseResponse(window []byte) (int, Response, error) {
	n, resp, err := meta.ParseResponse(window)
	if err != nil || n == 0 {
		return 0, nil, err
	}
	if resp.Error != nil && meta.Desyncs(resp.Error) {
		return 0, nil, resp.Error
	}
	return n, resp, nil
}

func (r *metaRequest) Idempotent() bool { return r.idempotent }
func (r *metaRequest) Opaque() uint32   { return 0 }

var opaqueCounter atomic.Uint32

// binaryRequest adapts a binary protocol request to the Request contract.
type binaryRequest struct {
	req        *binprot.Request
	idempotent bool
}

// BinaryRequest wraps a binary protocol request. Its responses are *binprot.Response.
//
// The request gets a fresh opaque if it has none, and the response must echo it:
// a mismatch means the stream is out of sync and closes the connection.
func BinaryRequest(req *binprot.Request, idempotent bool) Request {
	if req.Opaque == 0 {
		req = req.WithOpaque(opaqueCounter.Add(1))
	}
	return &binaryRequest{req: req, idempotent: idempotent}
}

func (r *binaryRequest) AppendRequest(dst []byte) ([]byte, error) {
	return binprot.AppendRequest(dst, r.req)
}

func (r *binaryRequest) ParseResponse(window []byte) (int, Response, error) {
	n, resp, err := binprot.ParseResponse(window)
	if err != nil || n == 0 {
		return 0, nil, err
	}
	if resp.Opaque != r.req.Opaque {
		return 0, nil, fmt.Errorf("opaque mismatch: sent %d, received %d", r.req.Opaque, resp.Opaque)
	}
	return n, resp, nil
}

func (r *binaryRequest) Idempotent() bool { return r.idempotent }
func (r *binaryRequest) Opaque() uint32   { return r.req.Opaque }

// Get returns a request fetching the value of key.
func (p Protocol) Get(key string) Request {
	if p == ProtocolBinary {
		return BinaryRequest(binprot.NewGet(key), true)
	}
	return MetaRequest(meta.NewRequest(meta.CmdGet, key, nil).AddReturnValue().AddReturnClientFlags(), true)
}

// Set returns a request storing value under key. A zero ttl never expires.
func (p Protocol) Set(key string, value []byte, ttl time.Duration) Request {
	if p == ProtocolBinary {
		return BinaryRequest(binprot.NewSet(key, value, 0, uint32(ttl/time.Second)), true)
	}
	req := meta.NewRequest(meta.CmdSet, key, value)
	if ttl > 0 {
		req.AddTTL(ttl)
	}
	return MetaRequest(req, true)
}

func (p Protocol) Delete(key string) Request {
	if p == ProtocolBinary {
		return BinaryRequest(binprot.NewDelete(key), true)
	}
	return MetaRequest(meta.NewRequest(meta.CmdDelete, key, nil), true)
}

// Incr returns a request incrementing the counter stored under key.
// The counter must exist. Incr is not idempotent and is never retried by default.
func (p Protocol) Incr(key string, delta uint64) Request {
	if p == ProtocolBinary {
		return BinaryRequest(binprot.NewIncrement(key, delta, 0, binprot.NoExpiration), false)
	}
	return MetaRequest(meta.NewRequest(meta.CmdArithmetic, key, nil).AddReturnValue().AddDelta(delta), false)
}

func (p Protocol) NoOp() Request {
	if p == ProtocolBinary {
		return BinaryRequest(binprot.NewNoOp(), true)
	}
	return MetaRequest(meta.NewRequest(meta.CmdNoOp, "", nil), true)
}

func (p Protocol) authRequest(username, password string) Request {
	if p == ProtocolBinary {
		return BinaryRequest(binprot.NewSASLPlain(username, password), false)
	}
	return &textAuthRequest{username: username, password: password}
}

// textAuthRequest authenticates a text protocol connection the way memcached expects
// it: a classic set of the "_auth" key whose value is "<username> <password>".
type textAuthRequest struct {
	username string
	password string
}

func (r *textAuthRequest) AppendRequest(dst []byte) ([]byte, error) {
	size := len(r.username) + 1 + len(r.password)
	dst = append(dst, "set _auth 0 0 "...)
	dst = strconv.AppendInt(dst, int64(size), 10)
	dst = append(dst, meta.CRLF...)
	dst = append(dst, r.username...)
	dst = append(dst, ' ')
	dst = append(dst, r.password...)
	dst = append(dst, meta.CRLF...)
	return dst, nil
}

// ParseResponse delivers error lines as responses: a rejected authentication is
// reported by Connect, not as a protocol failure.
func (r *textAuthRequest) ParseResponse(window []byte) (int, Response, error) {
	n, resp, err := meta.ParseResponse(window)
	if err != nil || n == 0 {
		return 0, nil, err
	}
	return n, resp, nil
}

func (r *textAuthRequest) Idempotent() bool { return false }
func (r *textAuthRequest) Opaque() uint32   { return 0 }

func checkAuthResponse(resp Response) error {
	switch r := resp.(type) {
	case *meta.Response:
		if r.Error != nil {
			return r.Error
		}
		if r.Status != meta.StatusStored {
			return fmt.Errorf("unexpected status %q", r.Status)
		}
		return nil
	case *binprot.Response:
		return r.Err()
	default:
		return fmt.Errorf("unexpected response type %T", resp)
	}
}
