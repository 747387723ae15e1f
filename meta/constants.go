package meta

// CmdType is a meta protocol command (2 characters).
type CmdType string

// FlagType is a single-character flag identifier.
type FlagType byte

// StatusType is a response status code.
type StatusType string

const (
	// CRLF terminates every line and data block.
	CRLF = "\r\n"

	Space = " "
)

// Commands.
const (
	// CmdGet retrieves an item.
	//
	// Wire format: mg <key> <flags>*\r\n
	// Responses: VA <size> (with v), HD, EN
	CmdGet CmdType = "mg"

	// CmdSet stores an item.
	//
	// Wire format: ms <key> <size> <flags>*\r\n<data>\r\n
	// Responses: HD, NS, NF, EX
	CmdSet CmdType = "ms"

	// CmdDelete deletes or invalidates an item.
	//
	// Wire format: md <key> <flags>*\r\n
	// Responses: HD, NF, EX
	CmdDelete CmdType = "md"

	// CmdArithmetic increments or decrements a counter.
	//
	// Wire format: ma <key> <flags>*\r\n
	// Responses: VA <size> (with v), HD, NF
	CmdArithmetic CmdType = "ma"

	// CmdNoOp returns MN. Useful to mark the end of a batch of quiet requests.
	//
	// Wire format: mn\r\n
	CmdNoOp CmdType = "mn"
)

// Response statuses.
const (
	StatusHD StatusType = "HD" // success, no value
	StatusVA StatusType = "VA" // success, value follows
	StatusEN StatusType = "EN" // miss
	StatusNF StatusType = "NF" // not found
	StatusNS StatusType = "NS" // not stored
	StatusEX StatusType = "EX" // CAS mismatch
	StatusMN StatusType = "MN" // no-op

	// StatusStored is the classic text protocol reply to a successful set.
	// It is only expected in response to the authentication request.
	StatusStored StatusType = "STORED"
)

// ErrorCode is the keyword of an error line sent in place of a status.
type ErrorCode string

const (
	// CodeError answers an unknown command.
	CodeError ErrorCode = "ERROR"

	// CodeClientError answers invalid input.
	// The server's parsing state is undefined afterwards.
	CodeClientError ErrorCode = "CLIENT_ERROR"

	// CodeServerError reports a failed operation (out of memory, item too large...).
	CodeServerError ErrorCode = "SERVER_ERROR"
)

// Request flags.
const (
	FlagBase64Key FlagType = 'b'
	FlagReturnKey FlagType = 'k'
	FlagOpaque    FlagType = 'O' // O<token>, at most MaxOpaqueLength bytes
	FlagQuiet     FlagType = 'q'

	FlagReturnCAS         FlagType = 'c'
	FlagReturnClientFlags FlagType = 'f'
	FlagReturnSize        FlagType = 's'
	FlagReturnTTL         FlagType = 't'
	FlagReturnValue       FlagType = 'v'
	FlagReturnHit         FlagType = 'h'
	FlagReturnLastAccess  FlagType = 'l'

	FlagCAS         FlagType = 'C' // C<cas>
	FlagTTL         FlagType = 'T' // T<seconds>, 0 is infinite
	FlagClientFlags FlagType = 'F' // F<uint32>
	FlagNoLRUBump   FlagType = 'u'
	FlagVivify      FlagType = 'N' // N<seconds>
	FlagMode        FlagType = 'M' // M<mode>, see Mode*
	FlagInvalidate  FlagType = 'I'

	FlagDelta        FlagType = 'D' // D<uint64>, default 1
	FlagInitialValue FlagType = 'J' // J<uint64>, with N
)

// Response-only flags.
const (
	FlagWin        FlagType = 'W'
	FlagStale      FlagType = 'X'
	FlagAlreadyWon FlagType = 'Z'
)

// Storage modes (ms with FlagMode).
const (
	ModeSet     = "S"
	ModeAdd     = "E"
	ModeReplace = "R"
	ModeAppend  = "A"
	ModePrepend = "P"
)

// Arithmetic modes (ma with FlagMode).
const (
	ModeIncrement = "I"
	ModeDecrement = "D"
)

// Protocol limits.
const (
	MinKeyLength    = 1
	MaxKeyLength    = 250
	MaxOpaqueLength = 32

	// MaxLineLength bounds a response line. A longer line without CRLF is a parse error.
	MaxLineLength = 2048

	// MaxDataSize bounds the size announced by a VA line.
	MaxDataSize = 1 << 30
)
