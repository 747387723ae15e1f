package meta

import (
	"strconv"
	"time"
)

// Request is a meta protocol request.
type Request struct {
	// Command is the 2-character command code.
	Command CmdType

	// Key is the item key, empty for mn.
	Key string

	// Data is the value stored by ms. Its length is sent as the size token.
	Data []byte

	// Flags holds the serialized flags, each with its leading space (e.g. " v c T60").
	Flags Flags
}

// NewRequest returns a request without flags. Use the Add* methods to add them:
//
//	req := NewRequest(CmdGet, "mykey", nil).AddReturnValue().AddReturnCAS()
func NewRequest(cmd CmdType, key string, data []byte) *Request {
	return &Request{
		Command: cmd,
		Key:     key,
		Data:    data,
	}
}

func (r *Request) HasFlag(flagType FlagType) bool {
	return r.Flags.Has(flagType)
}

func (r *Request) AddOpaque(token string) *Request {
	r.Flags.AddTokenString(FlagOpaque, token)
	return r
}
func (r *Request) AddQuiet() *Request     { r.Flags.Add(FlagQuiet); return r }
func (r *Request) AddBase64Key() *Request { r.Flags.Add(FlagBase64Key); return r }
func (r *Request) AddReturnKey() *Request { r.Flags.Add(FlagReturnKey); return r }

func (r *Request) AddReturnValue() *Request       { r.Flags.Add(FlagReturnValue); return r }
func (r *Request) AddReturnCAS() *Request         { r.Flags.Add(FlagReturnCAS); return r }
func (r *Request) AddReturnTTL() *Request         { r.Flags.Add(FlagReturnTTL); return r }
func (r *Request) AddReturnClientFlags() *Request { r.Flags.Add(FlagReturnClientFlags); return r }

func (r *Request) AddTTL(d time.Duration) *Request {
	r.Flags.AddInt64(FlagTTL, int64(d/time.Second))
	return r
}
func (r *Request) AddCAS(value uint64) *Request         { r.Flags.AddUint64(FlagCAS, value); return r }
func (r *Request) AddClientFlags(flags uint32) *Request { r.Flags.AddUint64(FlagClientFlags, uint64(flags)); return r }
func (r *Request) AddMode(mode string) *Request         { r.Flags.AddTokenString(FlagMode, mode); return r }
func (r *Request) AddInvalidate() *Request              { r.Flags.Add(FlagInvalidate); return r }

func (r *Request) AddDelta(amount uint64) *Request       { r.Flags.AddUint64(FlagDelta, amount); return r }
func (r *Request) AddInitialValue(value uint64) *Request { r.Flags.AddUint64(FlagInitialValue, value); return r }
func (r *Request) AddVivify(d time.Duration) *Request {
	r.Flags.AddInt64(FlagVivify, int64(d/time.Second))
	return r
}

// Flags is the serialized form of meta protocol flags, as found on the wire after the
// key (request) or status (response).
//
// The zero value is ready to use.
type Flags []byte

func (f Flags) IsEmpty() bool {
	return len(f) == 0
}

func (f *Flags) Add(flagType FlagType) {
	*f = append(*f, ' ', byte(flagType))
}

func (f *Flags) AddTokenString(flagType FlagType, token string) {
	*f = append(*f, ' ', byte(flagType))
	*f = append(*f, token...)
}

func (f *Flags) AddInt64(flagType FlagType, value int64) {
	*f = append(*f, ' ', byte(flagType))
	*f = strconv.AppendInt(*f, value, 10)
}

func (f *Flags) AddUint64(flagType FlagType, value uint64) {
	*f = append(*f, ' ', byte(flagType))
	*f = strconv.AppendUint(*f, value, 10)
}

func (f Flags) Has(flagType FlagType) bool {
	_, ok := f.Get(flagType)
	return ok
}

// Get returns the token of the first flag of the given type.
//
// ok is true if the flag is present.
// token is nil if the flag is present but has no token.
func (f Flags) Get(flagType FlagType) (token []byte, ok bool) {
	for i := 0; i < len(f); {
		for i < len(f) && f[i] == ' ' {
			i++
		}
		if i >= len(f) {
			return nil, false
		}

		t := FlagType(f[i])
		i++

		start := i
		for i < len(f) && f[i] != ' ' {
			i++
		}

		if t == flagType {
			if start == i {
				return nil, true
			}
			return f[start:i], true
		}
	}
	return nil, false
}

// GetUint64 returns the numeric token of the first flag of the given type.
func (f Flags) GetUint64(flagType FlagType) (uint64, bool) {
	token, ok := f.Get(flagType)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(string(token), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
