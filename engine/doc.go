// Package engine runs instrumented contracts on wazero.
//
// # Architecture
//
//	WazeroEngine   - owns the wazero runtime, the env host module and the compiled module cache
//	WazeroModule   - a contract after loading, instrumentation and compilation
//	WazeroInstance - one instantiation with its own linear memory
//
// # Instantiation Flow
//
//  1. WazeroEngine.LoadModule() instruments the bytecode and compiles it, or returns the cached module
//  2. WazeroModule.Instantiate() creates an anonymous instance without running the start function
//  3. WithHost() binds the invocation's host to a context
//  4. WazeroInstance.Call() runs an export; env imports are routed to the bound host
//  5. WazeroModule.Release() drops the load reference; an evicted module is closed
//     once no caller holds it
//
// # Host binding
//
// The env module is instantiated once per engine. Its functions look the host
// up from the call context, which lets many instances run concurrently on one
// engine while each sees only its own runtime.
//
// # Cancellation
//
// The runtime is configured to close modules when the call context is done, so
// a deadline on ctx bounds the wall-clock time of a contract.
package engine
