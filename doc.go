// Package mcpipe is an asynchronous memcached client that pipelines requests over a
// single connection.
//
// A Client writes requests in the order Send is called, without waiting for earlier
// responses, and matches responses to requests by order. Send never blocks: it
// returns a Future that is resolved by the connection reader.
//
//	client, err := mcpipe.Connect(ctx, "localhost:11211", mcpipe.Config{})
//	if err != nil {
//		return err
//	}
//	defer client.Shutdown()
//
//	get := client.Send(mcpipe.ProtocolText.Get("greeting"))
//	resp, err := get.Wait(ctx)
//
// # Failures
//
// When the connection is lost, for any reason, every pending request fails with an
// *Error of kind KindClosed carrying the reason ("request timeout", "protocol error",
// "shutdown", ...), and every later Send fails the same way without touching the
// network. A Client never reconnects. Use errors.Is with the Err* sentinels to
// classify failures.
//
// # Decorators
//
// RetryingClient resends idempotent requests that failed with KindClosed, and
// BreakerClient stops sending to a connection that keeps failing. Both wrap any
// RawClient and can be stacked.
//
// # Wire protocols
//
// Requests are anything implementing Request. MetaRequest and BinaryRequest adapt the
// meta text protocol (package meta) and the binary protocol (package binprot), and
// Protocol builds the common commands for either.
package mcpipe
