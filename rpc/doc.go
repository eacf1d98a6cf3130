// Package rpc connects a remote client, which owns the state Provider, to a
// server running the executor.
//
// # Transport
//
// One TCP connection per client is multiplexed with yamux. The client opens a
// control stream speaking net/rpc to the "Executor" service. Providers are
// passed as capabilities: the client registers its provider with a Broker and
// sends the ID; the server opens a stream back, writes the ID and speaks
// net/rpc to the "Provider" service on it.
//
//	client                              server
//	  |-- control: Executor.Execute ------>|
//	  |<-- capability stream (id) ---------|
//	  |<-- Provider.StorageAt ... ---------|  (while the contract runs)
//	  |<-- ExecuteReply -------------------|
//
// # Byte order
//
// Integers on the wire are 32-byte little-endian words; addresses and hashes
// are fixed-width byte arrays. Errors travel as WireError so their kind
// survives the connection.
//
// # Bridging
//
// Each Execute runs on its own goroutine. The request handler waits on a
// single-value Handoff, which also reports a goroutine that exited without a
// result.
package rpc
