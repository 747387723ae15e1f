// Package meta encodes requests and parses responses of the memcached meta text protocol
// (mg, ms, md, ma, mn).
//
// The package works on byte slices so that it can be driven by a pipelined connection:
//
//	dst, err := meta.AppendRequest(dst, meta.NewRequest(meta.CmdGet, "mykey", nil).AddReturnValue())
//
//	n, resp, err := meta.ParseResponse(window)
//	switch {
//	case err != nil:
//	    // malformed stream, the connection must be closed
//	case n == 0:
//	    // incomplete response, read more bytes
//	default:
//	    // resp was parsed from window[:n]
//	}
//
// # Error Handling
//
// Error lines sent by the server (ERROR, CLIENT_ERROR, SERVER_ERROR) are complete
// responses: they are returned in Response.Error, not as a parse error.
// They are *ReplyError values. Desyncs tells whether the request stream can still be
// trusted afterwards: only SERVER_ERROR keeps the connection usable, while
// CLIENT_ERROR, ERROR and a *ParseError mean it must be closed.
//
// # Thread Safety
//
// Functions of this package are safe for concurrent use. Request and Response values
// are not: a Request must not be modified once handed to a client.
package meta
