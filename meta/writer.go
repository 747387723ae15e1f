package meta

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidateKey checks that key can be sent as is.
// Keys must be 1-250 bytes without whitespace or control characters, unless base64-encoded.
func ValidateKey(key string, hasBase64Flag bool) error {
	if len(key) < MinKeyLength {
		return &InvalidKeyError{Message: "key is empty"}
	}

	if len(key) > MaxKeyLength {
		return &InvalidKeyError{Message: "key exceeds maximum length of 250 bytes"}
	}

	if !hasBase64Flag && strings.ContainsFunc(key, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return &InvalidKeyError{Message: "key contains whitespace or control characters"}
	}

	return nil
}

// AppendRequest appends the wire form of req to dst.
// Format: <command> <key> [<size>] <flags>*\r\n[<data>\r\n]
//
// On error, dst is returned unchanged.
func AppendRequest(dst []byte, req *Request) ([]byte, error) {
	if req.Command == CmdNoOp {
		return append(dst, "mn\r\n"...), nil
	}

	if len(req.Command) != 2 {
		return dst, fmt.Errorf("meta: unknown command %q", req.Command)
	}

	if err := ValidateKey(req.Key, req.HasFlag(FlagBase64Key)); err != nil {
		return dst, err
	}

	if token, ok := req.Flags.Get(FlagOpaque); ok && len(token) > MaxOpaqueLength {
		return dst, fmt.Errorf("meta: opaque token exceeds maximum length of %d bytes", MaxOpaqueLength)
	}

	dst = append(dst, req.Command...)
	dst = append(dst, ' ')
	dst = append(dst, req.Key...)

	if req.Command == CmdSet {
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(len(req.Data)), 10)
	}

	dst = append(dst, req.Flags...)
	dst = append(dst, CRLF...)

	if req.Command == CmdSet {
		dst = append(dst, req.Data...)
		dst = append(dst, CRLF...)
	}

	return dst, nil
}
