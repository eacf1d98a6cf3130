package wasm

import "bytes"

// Module is a parsed core WebAssembly module.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Funcs     []uint32 // type indices of defined functions
	Tables    []TableType
	Memories  []Limits
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Elements  []Element
	DataCount *uint32
	Code      []FuncBody
	Data      []DataSegment
}

// FuncType is a function signature.
type FuncType struct {
	Params  []byte
	Results []byte
}

// Equal reports whether two signatures are identical.
func (t FuncType) Equal(o FuncType) bool {
	return bytes.Equal(t.Params, o.Params) && bytes.Equal(t.Results, o.Results)
}

// Limits describes memory or table bounds.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// TableType is a table's element type and size.
type TableType struct {
	ElemType byte
	Limits   Limits
}

// GlobalType is a global's value type and mutability.
type GlobalType struct {
	ValType byte
	Mutable bool
}

// Import is an imported function, table, memory or global. Only the field
// matching Kind is meaningful.
type Import struct {
	Module  string
	Name    string
	Kind    byte
	TypeIdx uint32
	Table   TableType
	Memory  Limits
	Global  GlobalType
}

// Export is an exported definition.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Global is a module-defined global. Init is an encoded constant expression
// including its end.
type Global struct {
	Type GlobalType
	Init []byte
}

// Element is an element segment. Segments listing function indices keep them
// in FuncIdxs; expression segments keep encoded const expressions in Exprs.
type Element struct {
	Flags    uint32
	TableIdx uint32
	Offset   []byte
	ElemKind byte // elemkind for flags 1-3, reftype for flags 5-7
	FuncIdxs []uint32
	Exprs    [][]byte
}

func (e Element) hasTableIdx() bool { return e.Flags == 2 || e.Flags == 6 }
func (e Element) hasOffset() bool   { return e.Flags&1 == 0 }
func (e Element) hasElemKind() bool { return e.Flags&3 != 0 }
func (e Element) usesExprs() bool   { return e.Flags&4 != 0 }

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType byte
}

// FuncBody is one entry of the code section.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // instructions, including the final end
}

// DataSegment is a data segment. Flags 0 and 2 are active, 1 is passive.
type DataSegment struct {
	Flags  uint32
	MemIdx uint32
	Offset []byte
	Init   []byte
}

// ImportedFuncCount returns the number of function imports.
func (m *Module) ImportedFuncCount() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == KindFunc {
			n++
		}
	}
	return n
}

func (m *Module) importedCount(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

// FindImport returns the index within Imports of module.name with the given kind.
func (m *Module) FindImport(module, name string, kind byte) int {
	for i, imp := range m.Imports {
		if imp.Module == module && imp.Name == name && imp.Kind == kind {
			return i
		}
	}
	return -1
}

// FuncIndexOfImport returns the function index of the import at position i.
func (m *Module) FuncIndexOfImport(i int) uint32 {
	var idx uint32
	for j := 0; j < i; j++ {
		if m.Imports[j].Kind == KindFunc {
			idx++
		}
	}
	return idx
}

// FindExport returns the export with the given name, if any.
func (m *Module) FindExport(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

// FuncTypeOf returns the signature of function idx, or nil when idx or its
// type index is out of range.
func (m *Module) FuncTypeOf(idx uint32) *FuncType {
	var typeIdx uint32
	imported := m.ImportedFuncCount()
	if idx < imported {
		var n uint32
		for _, imp := range m.Imports {
			if imp.Kind != KindFunc {
				continue
			}
			if n == idx {
				typeIdx = imp.TypeIdx
				break
			}
			n++
		}
	} else {
		local := idx - imported
		if local >= uint32(len(m.Funcs)) {
			return nil
		}
		typeIdx = m.Funcs[local]
	}
	if typeIdx >= uint32(len(m.Types)) {
		return nil
	}
	return &m.Types[typeIdx]
}

// TypeIndex returns the index of ft in the type section, appending it when absent.
func (m *Module) TypeIndex(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}
