package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-executor/wasm/internal/binary"
)

// Instruction is a decoded instruction. Imm holds the typed immediate for
// opcodes that carry one and is nil otherwise.
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type of block, loop and if. Negative values encode
// a value type or the empty type; others are type indices.
type BlockImm struct {
	Type int32
}

// BranchImm holds the label depth of br and br_if.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table of br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the callee of call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds the signature and table of call_indirect.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds a local index.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds a global index.
type GlobalImm struct {
	GlobalIdx uint32
}

// TableImm holds a table index.
type TableImm struct {
	TableIdx uint32
}

// MemoryImm is the memarg of loads and stores.
type MemoryImm struct {
	Align  uint32
	Offset uint32
}

// MemoryIdxImm holds the memory index of memory.size and memory.grow.
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds an i32.const value.
type I32Imm struct {
	Value int32
}

// I64Imm holds an i64.const value.
type I64Imm struct {
	Value int64
}

// F32Imm holds the raw bits of an f32.const so NaN payloads survive re-encoding.
type F32Imm struct {
	Bits uint32
}

// F64Imm holds the raw bits of an f64.const.
type F64Imm struct {
	Bits uint64
}

// RefNullImm holds the reference type of ref.null.
type RefNullImm struct {
	Type byte
}

// RefFuncImm holds the function of ref.func.
type RefFuncImm struct {
	FuncIdx uint32
}

// SelectTypeImm holds the result types of a typed select.
type SelectTypeImm struct {
	Types []byte
}

// MiscImm holds a 0xFC sub-opcode and its index operands.
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// FuncRef returns the function index carried by call and ref.func.
func (i Instruction) FuncRef() (uint32, bool) {
	switch imm := i.Imm.(type) {
	case CallImm:
		return imm.FuncIdx, i.Opcode == OpCall
	case RefFuncImm:
		return imm.FuncIdx, i.Opcode == OpRefFunc
	}
	return 0, false
}

// RemapFuncRef passes the function index of call and ref.func through remap.
func (i *Instruction) RemapFuncRef(remap func(uint32) uint32) {
	switch imm := i.Imm.(type) {
	case CallImm:
		i.Imm = CallImm{FuncIdx: remap(imm.FuncIdx)}
	case RefFuncImm:
		i.Imm = RefFuncImm{FuncIdx: remap(imm.FuncIdx)}
	}
}

// DecodeInstructions decodes a sequence of instructions. Proposals contract
// code may not use (SIMD, threads, tail calls, exceptions, typed function
// references, GC) fail.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := binary.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)
	for !r.EOF() {
		start := r.Position()
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, fmt.Errorf("at offset %d: %w", start, err)
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

func decodeInstruction(r *binary.Reader) (Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: op}

	switch {
	case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd, op == OpReturn,
		op == OpDrop, op == OpSelect, op == OpRefIsNull,
		op >= OpI32Eqz && op <= OpI64Extend32S:
		// No immediate

	case op == OpBlock, op == OpLoop, op == OpIf:
		bt, err := readBlockType(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = BlockImm{Type: bt}

	case op == OpBr, op == OpBrIf:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{LabelIdx: idx}

	case op == OpBrTable:
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		if int(count) > r.Len() {
			return instr, fmt.Errorf("br_table with %d labels exceeds body", count)
		}
		labels := make([]uint32, count)
		for i := range labels {
			if labels[i], err = r.ReadU32(); err != nil {
				return instr, err
			}
		}
		def, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case op == OpCall:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallImm{FuncIdx: idx}

	case op == OpCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case op == OpLocalGet, op == OpLocalSet, op == OpLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case op == OpGlobalGet, op == OpGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = GlobalImm{GlobalIdx: idx}

	case op == OpTableGet, op == OpTableSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = TableImm{TableIdx: idx}

	case op >= OpI32Load && op <= OpI64Store32:
		align, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		offset, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = MemoryImm{Align: align, Offset: offset}

	case op == OpMemorySize, op == OpMemoryGrow:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = MemoryIdxImm{MemIdx: idx}

	case op == OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = I32Imm{Value: v}

	case op == OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return instr, err
		}
		instr.Imm = I64Imm{Value: v}

	case op == OpF32Const:
		bits, err := r.ReadU32LE()
		if err != nil {
			return instr, err
		}
		instr.Imm = F32Imm{Bits: bits}

	case op == OpF64Const:
		bits, err := r.ReadU64LE()
		if err != nil {
			return instr, err
		}
		instr.Imm = F64Imm{Bits: bits}

	case op == OpRefNull:
		t, err := r.ReadByte()
		if err != nil {
			return instr, err
		}
		if t != ValFuncRef && t != ValExternRef {
			return instr, fmt.Errorf("unsupported ref.null type 0x%02x", t)
		}
		instr.Imm = RefNullImm{Type: t}

	case op == OpRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = RefFuncImm{FuncIdx: idx}

	case op == OpSelectType:
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		types, err := r.ReadBytes(int(count))
		if err != nil {
			return instr, err
		}
		for _, t := range types {
			if !isValType(t) {
				return instr, fmt.Errorf("unsupported select type 0x%02x", t)
			}
		}
		instr.Imm = SelectTypeImm{Types: types}

	case op == OpPrefixMisc:
		imm, err := decodeMiscImmediate(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case op == OpPrefixSIMD:
		return instr, errors.New("SIMD instructions are not supported")

	case op == OpPrefixThreads:
		return instr, errors.New("atomic instructions are not supported")

	case op == OpReturnCall, op == OpReturnCallIndirect, op == OpReturnCallRef:
		return instr, errors.New("tail calls are not supported")

	default:
		return instr, fmt.Errorf("unsupported opcode 0x%02x", op)
	}
	return instr, nil
}

func readBlockType(r *binary.Reader) (int32, error) {
	bt, err := r.ReadS32()
	if err != nil {
		return 0, err
	}
	if bt < 0 {
		t := byte(bt & 0x7f)
		if bt < -64 || (t != BlockTypeEmpty && !isValType(t)) {
			return 0, fmt.Errorf("invalid block type %d", bt)
		}
	}
	return bt, nil
}

func decodeMiscImmediate(r *binary.Reader) (MiscImm, error) {
	sub, err := r.ReadU32()
	if err != nil {
		return MiscImm{}, err
	}
	imm := MiscImm{SubOpcode: sub}

	var operands int
	switch sub {
	case MiscMemoryInit, MiscMemoryCopy, MiscTableInit, MiscTableCopy:
		operands = 2
	case MiscDataDrop, MiscMemoryFill, MiscElemDrop, MiscTableGrow, MiscTableSize, MiscTableFill:
		operands = 1
	default:
		// Saturating truncations take no operands.
		if sub > MiscI64TruncSatF64U {
			return imm, fmt.Errorf("unsupported 0xFC sub-opcode %d", sub)
		}
	}
	for i := 0; i < operands; i++ {
		v, err := r.ReadU32()
		if err != nil {
			return imm, err
		}
		imm.Operands = append(imm.Operands, v)
	}
	return imm, nil
}

// readConstExpr decodes a constant expression up to and including its end and
// returns it re-encoded.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	var instrs []Instruction
	for {
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, instr)
		if instr.Opcode == OpEnd {
			return EncodeInstructions(instrs), nil
		}
	}
}

func encodeInstruction(w *binary.Writer, instr *Instruction) {
	w.Byte(instr.Opcode)

	switch imm := instr.Imm.(type) {
	case BlockImm:
		w.WriteS32(imm.Type)
	case BranchImm:
		w.WriteU32(imm.LabelIdx)
	case BrTableImm:
		w.WriteU32(uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			w.WriteU32(l)
		}
		w.WriteU32(imm.Default)
	case CallImm:
		w.WriteU32(imm.FuncIdx)
	case CallIndirectImm:
		w.WriteU32(imm.TypeIdx)
		w.WriteU32(imm.TableIdx)
	case LocalImm:
		w.WriteU32(imm.LocalIdx)
	case GlobalImm:
		w.WriteU32(imm.GlobalIdx)
	case TableImm:
		w.WriteU32(imm.TableIdx)
	case MemoryImm:
		w.WriteU32(imm.Align)
		w.WriteU32(imm.Offset)
	case MemoryIdxImm:
		w.WriteU32(imm.MemIdx)
	case I32Imm:
		w.WriteS32(imm.Value)
	case I64Imm:
		w.WriteS64(imm.Value)
	case F32Imm:
		w.WriteU32LE(imm.Bits)
	case F64Imm:
		w.WriteU64LE(imm.Bits)
	case RefNullImm:
		w.Byte(imm.Type)
	case RefFuncImm:
		w.WriteU32(imm.FuncIdx)
	case SelectTypeImm:
		w.WriteU32(uint32(len(imm.Types)))
		w.WriteBytes(imm.Types)
	case MiscImm:
		w.WriteU32(imm.SubOpcode)
		for _, v := range imm.Operands {
			w.WriteU32(v)
		}
	}
}

// EncodeInstructions encodes instructions to bytes.
func EncodeInstructions(instrs []Instruction) []byte {
	w := binary.NewWriter()
	w.Grow(len(instrs) * 3)
	for i := range instrs {
		encodeInstruction(w, &instrs[i])
	}
	return w.Bytes()
}

// RemapFuncRefs re-encodes code with every call and ref.func index passed
// through remap.
func RemapFuncRefs(code []byte, remap func(uint32) uint32) ([]byte, error) {
	instrs, err := DecodeInstructions(code)
	if err != nil {
		return nil, err
	}
	for i := range instrs {
		instrs[i].RemapFuncRef(remap)
	}
	return EncodeInstructions(instrs), nil
}

func isValType(b byte) bool {
	switch b {
	case ValI32, ValI64, ValF32, ValF64, ValFuncRef, ValExternRef:
		return true
	}
	return false
}
