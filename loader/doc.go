// Package loader turns raw contract bytecode into a module the sandbox can run.
//
// Load parses the binary, takes ownership of linear memory (an imported
// env.memory becomes a defined memory capped by the schedule), injects gas
// metering and detaches the start function so the caller can charge for
// memory before any contract code runs.
//
// Metering follows the block model: a charge of the form
//
//	i32.const <cost>
//	call $env.gas
//
// is placed at function entry and after every block, loop, if and else. The
// cost is the sum of the schedule's per-instruction costs of the region.
package loader
