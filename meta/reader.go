package meta

import (
	"bytes"
	"strconv"
)

var (
	crlfBytes      = []byte(CRLF)
	errorLineCodes = []ErrorCode{CodeClientError, CodeServerError, CodeError}
)

// ParseResponse parses a single response from the beginning of window.
// Response format: <status> [<size>] <flags>*\r\n[<data>\r\n]
//
// It follows the bufio.SplitFunc convention:
//   - 0, nil, nil: window holds an incomplete response
//   - n, resp, nil: resp was parsed from window[:n]
//   - 0, nil, err: window does not start with a valid response (*ParseError)
//
// Error lines (CLIENT_ERROR, SERVER_ERROR, ERROR) are valid responses and are
// returned in Response.Error.
//
// The response does not reference window.
func ParseResponse(window []byte) (int, *Response, error) {
	eol := bytes.Index(window, crlfBytes)
	if eol < 0 {
		if len(window) > MaxLineLength {
			return 0, nil, &ParseError{Message: "response line too long"}
		}
		return 0, nil, nil
	}

	line := window[:eol]
	n := eol + len(CRLF)

	if replyErr := parseErrorLine(line); replyErr != nil {
		return n, &Response{Error: replyErr}, nil
	}

	status, rest := nextToken(line)
	if len(status) < 2 {
		return 0, nil, &ParseError{Message: "invalid response line: " + strconv.Quote(string(line))}
	}

	resp := &Response{
		Status: StatusType(status),
	}

	if resp.Status == StatusVA {
		var sizeToken []byte
		sizeToken, rest = nextToken(rest)
		if len(sizeToken) == 0 {
			return 0, nil, &ParseError{Message: "VA response missing size"}
		}

		size, err := strconv.Atoi(string(sizeToken))
		if err != nil {
			return 0, nil, &ParseError{Message: "invalid size in VA response", Err: err}
		}
		if size < 0 || size > MaxDataSize {
			return 0, nil, &ParseError{Message: "size out of range in VA response: " + string(sizeToken)}
		}

		end := n + size + len(CRLF)
		if len(window) < end {
			return 0, nil, nil
		}
		if !bytes.Equal(window[n+size:end], crlfBytes) {
			return 0, nil, &ParseError{Message: "invalid data block terminator"}
		}

		resp.Data = bytes.Clone(window[n : n+size])
		n = end
	}

	if len(bytes.TrimLeft(rest, Space)) > 0 {
		resp.Flags = Flags(bytes.Clone(rest))
	}

	return n, resp, nil
}

// nextToken splits the first space-separated token off line.
// rest keeps its leading space.
func nextToken(line []byte) (token, rest []byte) {
	line = bytes.TrimLeft(line, Space)
	end := bytes.IndexByte(line, ' ')
	if end < 0 {
		return line, nil
	}
	return line[:end], line[end:]
}

// parseErrorLine returns the ReplyError carried by line, nil for a status line.
func parseErrorLine(line []byte) *ReplyError {
	for _, code := range errorLineCodes {
		rest, ok := bytes.CutPrefix(line, []byte(code))
		if !ok {
			continue
		}
		if len(rest) == 0 {
			return &ReplyError{Code: code}
		}
		if rest[0] == ' ' {
			return &ReplyError{Code: code, Message: string(rest[1:])}
		}
	}
	return nil
}
