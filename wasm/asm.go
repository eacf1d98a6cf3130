package wasm

import (
	"github.com/wippyai/wasm-executor/wasm/internal/binary"
)

// Asm assembles a function body instruction by instruction.
type Asm struct {
	w *binary.Writer
}

// NewAsm returns an empty assembler.
func NewAsm() *Asm {
	return &Asm{w: binary.NewWriter()}
}

// Op appends raw opcodes without immediates.
func (a *Asm) Op(ops ...byte) *Asm {
	a.w.WriteBytes(ops)
	return a
}

// Instr appends decoded instructions.
func (a *Asm) Instr(instrs ...Instruction) *Asm {
	for i := range instrs {
		encodeInstruction(a.w, &instrs[i])
	}
	return a
}

func (a *Asm) I32Const(v int32) *Asm {
	a.w.Byte(OpI32Const)
	a.w.WriteS32(v)
	return a
}

func (a *Asm) I64Const(v int64) *Asm {
	a.w.Byte(OpI64Const)
	a.w.WriteS64(v)
	return a
}

func (a *Asm) index(op byte, idx uint32) *Asm {
	a.w.Byte(op)
	a.w.WriteU32(idx)
	return a
}

func (a *Asm) LocalGet(idx uint32) *Asm  { return a.index(OpLocalGet, idx) }
func (a *Asm) LocalSet(idx uint32) *Asm  { return a.index(OpLocalSet, idx) }
func (a *Asm) LocalTee(idx uint32) *Asm  { return a.index(OpLocalTee, idx) }
func (a *Asm) GlobalGet(idx uint32) *Asm { return a.index(OpGlobalGet, idx) }
func (a *Asm) GlobalSet(idx uint32) *Asm { return a.index(OpGlobalSet, idx) }
func (a *Asm) Call(fn uint32) *Asm       { return a.index(OpCall, fn) }
func (a *Asm) Br(depth uint32) *Asm      { return a.index(OpBr, depth) }
func (a *Asm) BrIf(depth uint32) *Asm    { return a.index(OpBrIf, depth) }

// Block opens a block with no results.
func (a *Asm) Block() *Asm { return a.Op(OpBlock, BlockTypeEmpty) }

// Loop opens a loop with no results.
func (a *Asm) Loop() *Asm { return a.Op(OpLoop, BlockTypeEmpty) }

// If opens an if with no results.
func (a *Asm) If() *Asm { return a.Op(OpIf, BlockTypeEmpty) }

func (a *Asm) Else() *Asm { return a.Op(OpElse) }
func (a *Asm) End() *Asm  { return a.Op(OpEnd) }

// Load emits a load opcode with natural-zero alignment and the given offset.
func (a *Asm) Load(op byte, offset uint32) *Asm {
	a.w.Byte(op)
	a.w.WriteU32(0)
	a.w.WriteU32(offset)
	return a
}

// Store emits a store opcode; the encoding is identical to Load.
func (a *Asm) Store(op byte, offset uint32) *Asm {
	return a.Load(op, offset)
}

func (a *Asm) MemoryGrow() *Asm { return a.Op(OpMemoryGrow, 0x00) }
func (a *Asm) MemorySize() *Asm { return a.Op(OpMemorySize, 0x00) }

// Bytes returns the assembled instructions.
func (a *Asm) Bytes() []byte {
	return a.w.Bytes()
}

// Builder assembles a module in memory. Function imports must be declared
// before any function is defined so that returned indices stay valid.
type Builder struct {
	m Module
}

// NewBuilder returns an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, params, results []byte) uint32 {
	if len(b.m.Funcs) > 0 {
		panic("wasm: function import declared after a defined function")
	}
	t := b.m.TypeIndex(FuncType{Params: params, Results: results})
	b.m.Imports = append(b.m.Imports, Import{Module: module, Name: name, Kind: KindFunc, TypeIdx: t})
	return b.m.ImportedFuncCount() - 1
}

// ImportMemory declares a memory import.
func (b *Builder) ImportMemory(module, name string, limits Limits) *Builder {
	b.m.Imports = append(b.m.Imports, Import{Module: module, Name: name, Kind: KindMemory, Memory: limits})
	return b
}

// Memory defines the module's linear memory.
func (b *Builder) Memory(limits Limits) *Builder {
	b.m.Memories = append(b.m.Memories, limits)
	return b
}

// Global defines a global initialized with an i32 or i64 constant.
func (b *Builder) Global(valType byte, mutable bool, init int64) uint32 {
	expr := NewAsm()
	if valType == ValI64 {
		expr.I64Const(init)
	} else {
		expr.I32Const(int32(init))
	}
	b.m.Globals = append(b.m.Globals, Global{
		Type: GlobalType{ValType: valType, Mutable: mutable},
		Init: expr.End().Bytes(),
	})
	return uint32(len(b.m.Globals) - 1)
}

// Func defines a function and returns its index. The final end is appended.
func (b *Builder) Func(params, results, locals []byte, body *Asm) uint32 {
	t := b.m.TypeIndex(FuncType{Params: params, Results: results})
	b.m.Funcs = append(b.m.Funcs, t)

	code := append([]byte(nil), body.Bytes()...)
	code = append(code, OpEnd)
	b.m.Code = append(b.m.Code, FuncBody{Locals: groupLocals(locals), Code: code})
	return b.m.ImportedFuncCount() + uint32(len(b.m.Funcs)) - 1
}

// groupLocals run-length encodes local declarations.
func groupLocals(locals []byte) []LocalEntry {
	var groups []LocalEntry
	for _, vt := range locals {
		if n := len(groups); n > 0 && groups[n-1].ValType == vt {
			groups[n-1].Count++
			continue
		}
		groups = append(groups, LocalEntry{Count: 1, ValType: vt})
	}
	return groups
}

// Export exports a definition under name.
func (b *Builder) Export(name string, kind byte, idx uint32) *Builder {
	b.m.Exports = append(b.m.Exports, Export{Name: name, Kind: kind, Index: idx})
	return b
}

// ExportFunc exports function fn under name.
func (b *Builder) ExportFunc(name string, fn uint32) *Builder {
	return b.Export(name, KindFunc, fn)
}

// Start sets the start function.
func (b *Builder) Start(fn uint32) *Builder {
	b.m.Start = &fn
	return b
}

// Data adds an active data segment for memory 0.
func (b *Builder) Data(offset uint32, data []byte) *Builder {
	b.m.Data = append(b.m.Data, DataSegment{
		Offset: NewAsm().I32Const(int32(offset)).End().Bytes(),
		Init:   data,
	})
	return b
}

// Module returns the module assembled so far.
func (b *Builder) Module() *Module {
	m := b.m
	return &m
}

// Build encodes the module.
func (b *Builder) Build() []byte {
	return b.Module().Encode()
}
