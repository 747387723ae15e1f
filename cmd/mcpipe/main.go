// Command mcpipe sends memcached requests through a single pipelined connection.
//
//	mcpipe --addr localhost:11211 set greeting hello --ttl 1m
//	mcpipe get greeting
//	mcpipe bench --requests 100000 --concurrency 32
package main

func main() {
	Execute()
}
