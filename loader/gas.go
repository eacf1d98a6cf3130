package loader

import (
	"fmt"
	"math"

	"github.com/wippyai/wasm-executor/schedule"
	"github.com/wippyai/wasm-executor/wasm"
)

// instrCost returns the metering cost of a single instruction.
func instrCost(ins wasm.Instruction, rules *schedule.Wasm) uint64 {
	op := ins.Opcode
	switch {
	case op >= wasm.OpI32Load && op <= wasm.OpI64Store32:
		return uint64(rules.Mem)
	case op == wasm.OpI32Mul, op == wasm.OpI64Mul, op == wasm.OpF32Mul, op == wasm.OpF64Mul:
		return uint64(rules.Mul)
	case op >= wasm.OpI32DivS && op <= wasm.OpI32RemU,
		op >= wasm.OpI64DivS && op <= wasm.OpI64RemU,
		op == wasm.OpF32Div, op == wasm.OpF64Div:
		return uint64(rules.Div)
	default:
		return uint64(rules.Regular)
	}
}

// meteredBlock is a straight-line region charged once on entry.
type meteredBlock struct {
	at   int // instruction index the charge is inserted before
	cost uint64
}

// blockCosts computes the charge for every metered block of a function body.
// Blocks open at function entry and after block, loop, if and else. The cost of
// an instruction goes to the innermost open block.
func blockCosts(instrs []wasm.Instruction, rules *schedule.Wasm) ([]meteredBlock, error) {
	if len(instrs) == 0 {
		return nil, nil
	}

	var done []meteredBlock
	stack := []meteredBlock{{at: 0}}

	add := func(cost uint64) error {
		top := &stack[len(stack)-1]
		if top.cost > math.MaxUint32-cost {
			return fmt.Errorf("block at instruction %d exceeds cost limit", top.at)
		}
		top.cost += cost
		return nil
	}

	for i, ins := range instrs {
		if len(stack) == 0 {
			return nil, fmt.Errorf("instruction %d after function end", i)
		}
		if err := add(instrCost(ins, rules)); err != nil {
			return nil, err
		}

		switch ins.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			stack = append(stack, meteredBlock{at: i + 1})
		case wasm.OpElse:
			done = append(done, stack[len(stack)-1])
			stack[len(stack)-1] = meteredBlock{at: i + 1}
		case wasm.OpEnd:
			done = append(done, stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%d unterminated blocks", len(stack))
	}
	return done, nil
}

// growCounter builds the body of the function that replaces memory.grow. It
// charges GrowMem per requested page, then grows. Requests beyond the page cap
// fail without a charge, as the grow itself would.
func growCounter(gasFunc uint32, rules *schedule.Wasm) ([]byte, error) {
	if uint64(rules.GrowMem)*uint64(rules.MaxMemoryPages) > math.MaxUint32 {
		return nil, fmt.Errorf("grow cost %d per page overflows at %d pages", rules.GrowMem, rules.MaxMemoryPages)
	}
	a := wasm.NewAsm().
		LocalGet(0).I32Const(int32(rules.MaxMemoryPages)).Op(wasm.OpI32GtU).
		If().I32Const(-1).Op(wasm.OpReturn).End().
		LocalGet(0).I32Const(int32(rules.GrowMem)).Op(wasm.OpI32Mul).Call(gasFunc).
		LocalGet(0).MemoryGrow().
		End()
	return a.Bytes(), nil
}

// meterBody rewrites a function body with a gas charge at the head of every
// metered block, remapping function indices through remap. Every memory.grow
// becomes a call to growFunc; the result reports whether any did.
func meterBody(code []byte, gasFunc, growFunc uint32, rules *schedule.Wasm, remap func(uint32) uint32) ([]byte, bool, error) {
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		return nil, false, err
	}
	blocks, err := blockCosts(instrs, rules)
	if err != nil {
		return nil, false, err
	}

	charges := make(map[int]uint64, len(blocks))
	for _, b := range blocks {
		if b.cost > 0 {
			charges[b.at] = b.cost
		}
	}

	out := make([]wasm.Instruction, 0, len(instrs)+2*len(charges))
	var grows bool
	for i, ins := range instrs {
		if cost, ok := charges[i]; ok {
			out = append(out,
				wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: int32(uint32(cost))}},
				wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: gasFunc}},
			)
		}
		if ins.Opcode == wasm.OpMemoryGrow {
			out = append(out, wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: growFunc}})
			grows = true
			continue
		}
		ins.RemapFuncRef(remap)
		out = append(out, ins)
	}
	return wasm.EncodeInstructions(out), grows, nil
}
