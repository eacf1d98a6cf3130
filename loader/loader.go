package loader

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/schedule"
	"github.com/wippyai/wasm-executor/types"
	"github.com/wippyai/wasm-executor/wasm"
)

// Names shared with the host environment.
const (
	EnvModule    = "env"
	GasImport    = "gas"
	MemoryExport = "memory"
	CallExport   = "call"
	StartExport  = "__executor_start"
)

// Module is validated, gas-instrumented contract code ready for instantiation.
type Module struct {
	Code         []byte
	InitialPages uint32
	MaxPages     uint32
	HasStart     bool
	Hash         types.H256 // keccak256 of the original bytecode
}

// Load parses code, validates its memory against the schedule and injects gas
// metering. Every failure is a terminal parse error.
func Load(code []byte, sched *schedule.Schedule) (*Module, error) {
	m, err := wasm.ParseModuleValidate(code)
	if err != nil {
		return nil, errors.Parse("decode module", err)
	}

	out := &Module{Hash: crypto.Keccak256Hash(code)}

	if err := ownMemory(m, sched.Wasm.MaxMemoryPages, out); err != nil {
		return nil, err
	}

	if exp, ok := m.FindExport(CallExport); !ok || exp.Kind != wasm.KindFunc {
		return nil, errors.Parse(fmt.Sprintf("missing %q function export", CallExport), nil)
	}

	if err := injectGas(m, &sched.Wasm); err != nil {
		return nil, err
	}

	if m.Start != nil {
		m.Exports = append(m.Exports, wasm.Export{Name: StartExport, Kind: wasm.KindFunc, Index: *m.Start})
		m.Start = nil
		out.HasStart = true
	}

	out.Code = m.Encode()
	return out, nil
}

// ownMemory converts an imported memory into a defined one, enforces the page
// cap and makes sure the memory is exported for the host.
func ownMemory(m *wasm.Module, maxPages uint32, out *Module) error {
	var imported []int
	for i, imp := range m.Imports {
		if imp.Kind == wasm.KindMemory {
			imported = append(imported, i)
		}
	}
	if len(imported)+len(m.Memories) > 1 {
		return errors.Parse("module declares more than one memory", nil)
	}

	if len(imported) == 1 {
		imp := m.Imports[imported[0]]
		if imp.Module != EnvModule || imp.Name != MemoryExport {
			return errors.Parse(fmt.Sprintf("unsupported memory import %s.%s", imp.Module, imp.Name), nil)
		}
		m.Memories = []wasm.Limits{imp.Memory}
		m.Imports = append(m.Imports[:imported[0]], m.Imports[imported[0]+1:]...)
	}

	if len(m.Memories) == 0 {
		return nil
	}

	mem := &m.Memories[0]
	if mem.Min > maxPages {
		return errors.Parse(fmt.Sprintf("initial memory %d pages exceeds limit %d", mem.Min, maxPages), nil)
	}
	if mem.HasMax && mem.Max > maxPages {
		return errors.Parse(fmt.Sprintf("maximum memory %d pages exceeds limit %d", mem.Max, maxPages), nil)
	}
	if !mem.HasMax {
		mem.Max = maxPages
		mem.HasMax = true
	}
	out.InitialPages = mem.Min
	out.MaxPages = mem.Max

	hasExport := false
	for _, e := range m.Exports {
		if e.Kind == wasm.KindMemory {
			hasExport = true
			break
		}
	}
	if !hasExport {
		m.Exports = append(m.Exports, wasm.Export{Name: MemoryExport, Kind: wasm.KindMemory, Index: 0})
	}
	return nil
}

// injectGas imports env.gas (reusing an existing import), prefixes every
// metered block with a charge and routes memory.grow through a charging
// helper appended after the module's own functions.
func injectGas(m *wasm.Module, rules *schedule.Wasm) error {
	gasType := wasm.FuncType{Params: []byte{wasm.ValI32}}

	var gasFunc uint32
	remap := func(idx uint32) uint32 { return idx }

	if i := m.FindImport(EnvModule, GasImport, wasm.KindFunc); i >= 0 {
		if ft := m.FuncTypeOf(m.FuncIndexOfImport(i)); ft == nil || !ft.Equal(gasType) {
			return errors.Parse("env.gas import has wrong signature", nil)
		}
		gasFunc = m.FuncIndexOfImport(i)
	} else {
		gasFunc = m.ImportedFuncCount()
		m.Imports = append(m.Imports, wasm.Import{
			Module:  EnvModule,
			Name:    GasImport,
			Kind:    wasm.KindFunc,
			TypeIdx: m.TypeIndex(gasType),
		})
		remap = func(idx uint32) uint32 {
			if idx >= gasFunc {
				return idx + 1
			}
			return idx
		}
		if err := remapOutsideCode(m, remap); err != nil {
			return err
		}
	}

	growFunc := m.ImportedFuncCount() + uint32(len(m.Funcs))
	var grows bool
	for i := range m.Code {
		code, g, err := meterBody(m.Code[i].Code, gasFunc, growFunc, rules, remap)
		if err != nil {
			return errors.Parse(fmt.Sprintf("function %d", i), err)
		}
		m.Code[i].Code = code
		grows = grows || g
	}
	if !grows {
		return nil
	}

	body, err := growCounter(gasFunc, rules)
	if err != nil {
		return errors.Parse("memory.grow metering", err)
	}
	m.Funcs = append(m.Funcs, m.TypeIndex(wasm.FuncType{Params: []byte{wasm.ValI32}, Results: []byte{wasm.ValI32}}))
	m.Code = append(m.Code, wasm.FuncBody{Code: body})
	return nil
}

// remapOutsideCode shifts function indices held by exports, the start section,
// element segments and global initializers.
func remapOutsideCode(m *wasm.Module, remap func(uint32) uint32) error {
	for i := range m.Exports {
		if m.Exports[i].Kind == wasm.KindFunc {
			m.Exports[i].Index = remap(m.Exports[i].Index)
		}
	}
	if m.Start != nil {
		s := remap(*m.Start)
		m.Start = &s
	}

	var err error
	for i := range m.Globals {
		if m.Globals[i].Init, err = wasm.RemapFuncRefs(m.Globals[i].Init, remap); err != nil {
			return errors.Parse(fmt.Sprintf("global %d", i), err)
		}
	}
	for i := range m.Elements {
		e := &m.Elements[i]
		for j := range e.FuncIdxs {
			e.FuncIdxs[j] = remap(e.FuncIdxs[j])
		}
		for j := range e.Exprs {
			if e.Exprs[j], err = wasm.RemapFuncRefs(e.Exprs[j], remap); err != nil {
				return errors.Parse(fmt.Sprintf("element %d", i), err)
			}
		}
		if e.Offset != nil {
			if e.Offset, err = wasm.RemapFuncRefs(e.Offset, remap); err != nil {
				return errors.Parse(fmt.Sprintf("element %d offset", i), err)
			}
		}
	}
	return nil
}
