package meta

import (
	"errors"
)

// ReplyError is an error line received in place of a status line.
type ReplyError struct {
	Code    ErrorCode
	Message string
}

func (e *ReplyError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Desyncs reports whether the server may have lost track of the request stream.
// Only SERVER_ERROR is sent after the request was fully consumed.
func (e *ReplyError) Desyncs() bool {
	return e.Code != CodeServerError
}

// InvalidKeyError is returned by AppendRequest when a key is rejected before anything
// is sent.
type InvalidKeyError struct {
	Message string
}

func (e *InvalidKeyError) Error() string {
	return "invalid key: " + e.Message
}

// ParseError is returned when a response cannot be parsed.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "parse error: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Desyncs returns true if the request stream can no longer be trusted after err:
// a ReplyError other than SERVER_ERROR, a ParseError or any unknown error.
func Desyncs(err error) bool {
	if err == nil {
		return false
	}

	var replyErr *ReplyError
	if errors.As(err, &replyErr) {
		return replyErr.Desyncs()
	}

	return true
}
