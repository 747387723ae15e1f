package binprot

import (
	"encoding/binary"
	"errors"
	"strings"
)

// NoExpiration as the expiration of an INCREMENT makes the server fail on a missing key
// instead of creating it.
const NoExpiration uint32 = 0xffffffff

func NewGet(key string) *Request {
	return &Request{Opcode: OpGet, Key: key}
}

// NewSet returns a SET request. Extras are the client flags and the expiration in seconds.
func NewSet(key string, value []byte, flags, expiration uint32) *Request {
	extras := make([]byte, 8)
	binary.BigEndian.PutUint32(extras[0:4], flags)
	binary.BigEndian.PutUint32(extras[4:8], expiration)
	return &Request{Opcode: OpSet, Key: key, Extras: extras, Value: value}
}

func NewDelete(key string) *Request {
	return &Request{Opcode: OpDelete, Key: key}
}

// NewIncrement returns an INCREMENT request.
// The key is created with initial when missing, unless expiration is NoExpiration.
func NewIncrement(key string, delta, initial uint64, expiration uint32) *Request {
	extras := make([]byte, 20)
	binary.BigEndian.PutUint64(extras[0:8], delta)
	binary.BigEndian.PutUint64(extras[8:16], initial)
	binary.BigEndian.PutUint32(extras[16:20], expiration)
	return &Request{Opcode: OpIncrement, Key: key, Extras: extras}
}

func NewNoOp() *Request {
	return &Request{Opcode: OpNoOp}
}

// NewSASLPlain returns a SASL authentication request with the PLAIN mechanism.
func NewSASLPlain(username, password string) *Request {
	payload := make([]byte, 0, len(username)+len(password)+2)
	payload = append(payload, 0)
	payload = append(payload, username...)
	payload = append(payload, 0)
	payload = append(payload, password...)
	return &Request{Opcode: OpSASLAuth, Key: "PLAIN", Value: payload}
}

// WithOpaque returns a copy of r carrying opaque.
func (r *Request) WithOpaque(opaque uint32) *Request {
	c := *r
	c.Opaque = opaque
	return &c
}

func validateKey(op Opcode, key string) error {
	switch op {
	case OpNoOp:
		if key != "" {
			return errors.New("binprot: NOOP takes no key")
		}
		return nil
	case OpSASLAuth:
	default:
		if key == "" {
			return errors.New("binprot: key is empty")
		}
		if strings.ContainsAny(key, " \t\r\n") {
			return errors.New("binprot: key contains whitespace")
		}
	}
	if len(key) > MaxKeyLength {
		return errors.New("binprot: key exceeds maximum length of 250 bytes")
	}
	return nil
}

// AppendRequest appends the wire form of req to dst.
// On error, dst is returned unchanged.
func AppendRequest(dst []byte, req *Request) ([]byte, error) {
	if err := validateKey(req.Opcode, req.Key); err != nil {
		return dst, err
	}
	if len(req.Extras) > 0xff {
		return dst, errors.New("binprot: extras too long")
	}

	bodyLen := len(req.Extras) + len(req.Key) + len(req.Value)
	if bodyLen > MaxBodyLength {
		return dst, errors.New("binprot: value too large")
	}

	var hdr [HeaderLen]byte
	hdr[0] = MagicRequest
	hdr[1] = uint8(req.Opcode)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(req.Key)))
	hdr[4] = uint8(len(req.Extras))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(bodyLen))
	binary.BigEndian.PutUint32(hdr[12:16], req.Opaque)
	binary.BigEndian.PutUint64(hdr[16:24], req.CAS)

	dst = append(dst, hdr[:]...)
	dst = append(dst, req.Extras...)
	dst = append(dst, req.Key...)
	dst = append(dst, req.Value...)
	return dst, nil
}

// ParseResponse parses a single response packet from the beginning of window.
//
// It follows the bufio.SplitFunc convention: 0, nil, nil means window holds an
// incomplete packet. A *ParseError means the stream is out of sync.
//
// The response does not reference window.
func ParseResponse(window []byte) (int, *Response, error) {
	if len(window) < HeaderLen {
		if len(window) > 0 && window[0] != MagicResponse {
			return 0, nil, &ParseError{Message: "bad magic byte"}
		}
		return 0, nil, nil
	}

	if window[0] != MagicResponse {
		return 0, nil, &ParseError{Message: "bad magic byte"}
	}

	keyLen := int(binary.BigEndian.Uint16(window[2:4]))
	extrasLen := int(window[4])
	bodyLen := int(binary.BigEndian.Uint32(window[8:12]))

	if bodyLen > MaxBodyLength {
		return 0, nil, &ParseError{Message: "body too large"}
	}
	if extrasLen+keyLen > bodyLen {
		return 0, nil, &ParseError{Message: "extras and key exceed body length"}
	}

	n := HeaderLen + bodyLen
	if len(window) < n {
		return 0, nil, nil
	}

	body := window[HeaderLen:n]
	resp := &Response{
		Opcode: Opcode(window[1]),
		Status: Status(binary.BigEndian.Uint16(window[6:8])),
		Opaque: binary.BigEndian.Uint32(window[12:16]),
		CAS:    binary.BigEndian.Uint64(window[16:24]),
	}
	if extrasLen > 0 {
		resp.Extras = append([]byte(nil), body[:extrasLen]...)
	}
	if keyLen > 0 {
		resp.Key = append([]byte(nil), body[extrasLen:extrasLen+keyLen]...)
	}
	if value := body[extrasLen+keyLen:]; len(value) > 0 {
		resp.Value = append([]byte(nil), value...)
	}

	return n, resp, nil
}
