// Package wasm reads and writes the WebAssembly binary format for the
// executor's loader.
//
// The parser covers WebAssembly 2.0 core modules with bulk memory, reference
// types, sign extension and saturating conversions. Modules using SIMD,
// threads, tail calls, exception handling or GC types are rejected since
// contract code may not use them.
//
// # Parsing
//
//	m, err := wasm.ParseModule(code)
//	if err != nil {
//	    return err
//	}
//	size := wasm.PeekSize(code) // module length without trailing bytes
//
// ParseModuleValidate additionally checks index references and section
// counts. Custom sections are dropped; Encode writes the remaining sections
// back in canonical order.
//
// # Instructions
//
// DecodeInstructions yields typed instructions that can be edited and
// re-encoded:
//
//	instrs, err := wasm.DecodeInstructions(body.Code)
//	for i := range instrs {
//	    instrs[i].RemapFuncRef(func(idx uint32) uint32 { return idx + 1 })
//	}
//	body.Code = wasm.EncodeInstructions(instrs)
//
// # Assembling
//
// Builder and Asm produce modules without a text-format toolchain:
//
//	b := wasm.NewBuilder()
//	ret := b.ImportFunc("env", "ret", []byte{wasm.ValI32, wasm.ValI32}, nil)
//	b.Memory(wasm.Limits{Min: 1})
//	fn := b.Func(nil, nil, nil, wasm.NewAsm().I32Const(0).I32Const(0).Call(ret))
//	b.ExportFunc("call", fn)
//	code := b.Build()
package wasm
