// Package executor applies a transaction to a Provider in a single pass.
//
// # Flow
//
//  1. Resolve ActionParams: a Call reads the target's code, a Create derives the address
//  2. Instrument and compile the code (cached by code hash)
//  3. Scale the transaction gas into internal units; it must fit in 64 bits
//  4. Instantiate and charge the initial memory
//  5. Run the start routine, then the "call" export
//  6. On success persist deployed code, flush buffered storage and report the result
//
// Failures never reach the Provider: buffered writes are discarded and the
// typed error is returned. Nothing is retried.
package executor
