// Package binprot encodes requests and parses responses of the memcached binary protocol.
//
// Every packet starts with a 24-byte big-endian header:
//
//	magic(1) opcode(1) key length(2) extras length(1) data type(1)
//	vbucket or status(2) total body length(4) opaque(4) cas(8)
//
// followed by extras, key and value. Responses echo the opaque of their request.
package binprot

import (
	"encoding/binary"
	"fmt"
)

const (
	HeaderLen = 24

	MagicRequest  uint8 = 0x80
	MagicResponse uint8 = 0x81

	MaxKeyLength = 250

	// MaxBodyLength bounds the body announced by a response header.
	MaxBodyLength = 1 << 30
)

type Opcode uint8

const (
	OpGet       Opcode = 0x00
	OpSet       Opcode = 0x01
	OpDelete    Opcode = 0x04
	OpIncrement Opcode = 0x05
	OpNoOp      Opcode = 0x0a
	OpSASLAuth  Opcode = 0x21
)

func (o Opcode) String() string {
	switch o {
	case OpGet:
		return "GET"
	case OpSet:
		return "SET"
	case OpDelete:
		return "DELETE"
	case OpIncrement:
		return "INCREMENT"
	case OpNoOp:
		return "NOOP"
	case OpSASLAuth:
		return "SASL_AUTH"
	default:
		return fmt.Sprintf("Opcode(0x%02x)", uint8(o))
	}
}

type Status uint16

const (
	StatusOK             Status = 0x0000
	StatusKeyNotFound    Status = 0x0001
	StatusKeyExists      Status = 0x0002
	StatusValueTooLarge  Status = 0x0003
	StatusInvalidArgs    Status = 0x0004
	StatusNotStored      Status = 0x0005
	StatusNonNumeric     Status = 0x0006
	StatusAuthError      Status = 0x0020
	StatusUnknownCommand Status = 0x0081
	StatusOutOfMemory    Status = 0x0082
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "no error"
	case StatusKeyNotFound:
		return "key not found"
	case StatusKeyExists:
		return "key exists"
	case StatusValueTooLarge:
		return "value too large"
	case StatusInvalidArgs:
		return "invalid arguments"
	case StatusNotStored:
		return "item not stored"
	case StatusNonNumeric:
		return "incr/decr on non-numeric value"
	case StatusAuthError:
		return "authentication error"
	case StatusUnknownCommand:
		return "unknown command"
	case StatusOutOfMemory:
		return "out of memory"
	default:
		return fmt.Sprintf("Status(0x%04x)", uint16(s))
	}
}

// StatusError is a response with a non-OK status.
// The connection is still in sync after it.
type StatusError struct {
	Opcode Opcode
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Opcode, e.Status)
}

// ParseError is returned when the response stream cannot be parsed.
// The connection must be closed after it.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return "binprot: parse error: " + e.Message
}

// Request is a binary protocol request packet.
type Request struct {
	Opcode Opcode
	Key    string
	Extras []byte
	Value  []byte
	Opaque uint32
	CAS    uint64
}

// Response is a binary protocol response packet.
type Response struct {
	Opcode Opcode
	Status Status
	Opaque uint32
	CAS    uint64
	Extras []byte
	Key    []byte
	Value  []byte
}

// Err returns a *StatusError if the status is not OK.
func (r *Response) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	return &StatusError{Opcode: r.Opcode, Status: r.Status}
}

// IsMiss returns true for a key not found status.
func (r *Response) IsMiss() bool {
	return r.Status == StatusKeyNotFound
}

// Flags returns the client flags of a GET response.
func (r *Response) Flags() (uint32, bool) {
	if r.Opcode != OpGet || len(r.Extras) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(r.Extras), true
}

// Counter returns the new value of an INCREMENT response.
func (r *Response) Counter() (uint64, bool) {
	if r.Opcode != OpIncrement || r.Status != StatusOK || len(r.Value) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(r.Value), true
}
