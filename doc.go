// Package wasmexecutor is a sandboxed, gas-metered execution engine for
// WebAssembly smart contracts.
//
// Transactions are applied against a Provider that supplies account and
// storage state. The Provider may live in the same process or behind a
// capability RPC; the engine treats both the same way.
//
// # Architecture Overview
//
//	wasmexecutor/        Root package with the sandbox Memory interface
//	├── executor/        Runs one transaction end to end
//	├── runtime/         Host function table and gas accounting
//	├── engine/          wazero integration and compiled module cache
//	├── loader/          Bytecode validation and gas instrumentation
//	├── wasm/            Core WASM binary reading, writing and assembly
//	├── schedule/        Gas cost table
//	├── state/           Per-execution write buffer over a Provider
//	├── provider/        The Provider capability
//	├── ledger/          In-process Provider backed by LevelDB
//	├── rpc/             Executor service and remote Provider over yamux
//	├── contracts/       Reference token contract
//	├── config/          Configuration loading
//	├── types/           Addresses, words and transactions
//	└── errors/          Structured error types
//
// # Quick Start
//
// Deploy a contract against an in-process ledger:
//
//	l, _ := ledger.New()
//	defer l.Close()
//
//	ex, err := executor.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ex.Close(ctx)
//
//	tx := types.NewCreate(ledger.AddressFromAlias("alice"), value, gas, price, code, args, salt)
//	res, err := ex.Execute(ctx, tx, l)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Contract.Hex())
//
// # Gas
//
// Contract code is instrumented at load time to call env.gas at the head of
// every straight-line block. Host functions charge their own costs from the
// schedule, scaled by opcodes_div/opcodes_mul into the same internal units.
// A charge that would exceed the limit fails and leaves the counter untouched.
//
// # Byte Order
//
// Numbers inside the sandbox are 32-byte big-endian words. Numbers on the wire
// are 32-byte little-endian words. The types package converts at each boundary.
package wasmexecutor
