// Package runtime implements the host side of a contract invocation: the env
// import table, gas accounting and the bridge between sandbox memory and the
// state provider.
//
// A Runtime is created per invocation with a gas limit already scaled into
// internal units:
//
//	rt := runtime.New(params, sched, st, limit)
//	rt.SetMemory(mem)
//	// the engine routes every env import to rt.Invoke
//
// # Gas
//
// Every charge goes through one primitive that refuses to move the counter
// past the limit. Schedule costs are scaled by OpcodesDiv/OpcodesMul before
// being charged ("adjusted" charges); instrumentation charges from the gas
// import are already internal units.
//
// # Control flow
//
// Host functions abort the contract by panicking with a typed error. The
// engine recovers it, and ErrReturn and ErrSuicide are treated as successful
// completion.
//
// # Nested effects
//
// ccall, create and suicide decode and charge their arguments here and then
// delegate the state change to an Effects implementation. The default,
// Unimplemented, reports every effect as not applied, which fails the
// invocation with a "not completed" panic.
package runtime
