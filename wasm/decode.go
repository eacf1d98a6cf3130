package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-executor/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseModule decodes a WebAssembly binary module. Custom sections are dropped.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)
	if err := readHeader(r); err != nil {
		return nil, err
	}

	m := &Module{}
	var lastSectionOrder int
	for !r.EOF() {
		sectionID, _ := r.ReadByte()
		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order < 0 {
				return nil, fmt.Errorf("unknown section ID: 0x%02x", sectionID)
			}
			if order <= lastSectionOrder {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		sr := binary.NewReader(sectionData)
		var name string
		switch sectionID {
		case SectionCustom:
			name, err = "custom section", parseCustomSection(sr)
		case SectionType:
			name, err = "type section", parseTypeSection(sr, m)
		case SectionImport:
			name, err = "import section", parseImportSection(sr, m)
		case SectionFunction:
			name, err = "function section", parseFunctionSection(sr, m)
		case SectionTable:
			name, err = "table section", parseTableSection(sr, m)
		case SectionMemory:
			name, err = "memory section", parseMemorySection(sr, m)
		case SectionGlobal:
			name, err = "global section", parseGlobalSection(sr, m)
		case SectionExport:
			name, err = "export section", parseExportSection(sr, m)
		case SectionStart:
			name, err = "start section", parseStartSection(sr, m)
		case SectionElement:
			name, err = "element section", parseElementSection(sr, m)
		case SectionCode:
			name, err = "code section", parseCodeSection(sr, m)
		case SectionData:
			name, err = "data section", parseDataSection(sr, m)
		case SectionDataCount:
			name, err = "data count section", parseDataCountSection(sr, m)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if !sr.EOF() {
			return nil, fmt.Errorf("%s: %d trailing bytes", name, sr.Len())
		}
	}
	return m, nil
}

// PeekSize returns the length of the module at the head of data. Bytes after
// the last well-formed section (for example constructor arguments) are not
// counted. It returns 0 when data does not start with a module header.
func PeekSize(data []byte) int {
	r := binary.NewReader(data)
	if readHeader(r) != nil {
		return 0
	}

	end := r.Position()
	last := 0
	for !r.EOF() {
		id, _ := r.ReadByte()
		if id != SectionCustom {
			order := sectionOrder(id)
			if order <= last {
				break
			}
			last = order
		}
		size, err := r.ReadU32()
		if err != nil {
			break
		}
		if _, err := r.ReadBytes(int(size)); err != nil {
			break
		}
		end = r.Position()
	}
	return end
}

func readHeader(r *binary.Reader) error {
	magic, err := r.ReadU32LE()
	if err != nil || magic != Magic {
		return ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil || version != Version {
		return ErrInvalidVersion
	}
	return nil
}

// sectionOrder maps a section ID to its required position, or -1 for IDs
// contract code may not carry.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionGlobal:
		return 6
	case SectionExport:
		return 7
	case SectionStart:
		return 8
	case SectionElement:
		return 9
	case SectionDataCount:
		return 10 // DataCount must come before Code
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return -1
	}
}

func parseCustomSection(r *binary.Reader) error {
	if _, err := r.ReadName(); err != nil {
		return err
	}
	_, err := r.ReadRemaining()
	return err
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("unsupported type form 0x%02x", form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	types, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	for _, vt := range types {
		if !isValType(vt) {
			return nil, fmt.Errorf("unsupported value type 0x%02x", vt)
		}
	}
	return types, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Name, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Kind, err = r.ReadByte(); err != nil {
			return err
		}

		switch imp.Kind {
		case KindFunc:
			imp.TypeIdx, err = r.ReadU32()
		case KindTable:
			imp.Table, err = readTableType(r)
		case KindMemory:
			imp.Memory, err = readLimits(r)
		case KindGlobal:
			imp.Global, err = readGlobalType(r)
		default:
			err = fmt.Errorf("unknown import kind: %d", imp.Kind)
		}
		if err != nil {
			return err
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return fmt.Errorf("%d functions exceed section size", count)
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		t, err := readTableType(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, t)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		l, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, l)
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		globalType, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: globalType, Init: init})
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var e Export
		if e.Name, err = r.ReadName(); err != nil {
			return err
		}
		if e.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if e.Kind > KindGlobal {
			return fmt.Errorf("invalid export kind: 0x%02x", e.Kind)
		}
		if e.Index, err = r.ReadU32(); err != nil {
			return err
		}
		m.Exports = append(m.Exports, e)
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var e Element
		if e.Flags, err = r.ReadU32(); err != nil {
			return err
		}
		if e.Flags > 7 {
			return fmt.Errorf("invalid element segment flags: %d", e.Flags)
		}
		if e.hasTableIdx() {
			if e.TableIdx, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if e.hasOffset() {
			if e.Offset, err = readConstExpr(r); err != nil {
				return err
			}
		}
		if e.hasElemKind() {
			if e.ElemKind, err = r.ReadByte(); err != nil {
				return err
			}
		}

		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(n) > r.Len() {
			return fmt.Errorf("element segment %d: %d entries exceed section size", i, n)
		}
		for j := uint32(0); j < n; j++ {
			if e.usesExprs() {
				expr, err := readConstExpr(r)
				if err != nil {
					return err
				}
				e.Exprs = append(e.Exprs, expr)
				continue
			}
			idx, err := r.ReadU32()
			if err != nil {
				return err
			}
			e.FuncIdxs = append(e.FuncIdxs, idx)
		}
		m.Elements = append(m.Elements, e)
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.ReadU32()
		if err != nil {
			return err
		}
		bodyData, err := r.ReadBytes(int(bodySize))
		if err != nil {
			return err
		}

		br := binary.NewReader(bodyData)
		localCount, err := br.ReadU32()
		if err != nil {
			return err
		}
		var locals []LocalEntry
		for j := uint32(0); j < localCount; j++ {
			n, err := br.ReadU32()
			if err != nil {
				return err
			}
			t, err := br.ReadByte()
			if err != nil {
				return err
			}
			if !isValType(t) {
				return fmt.Errorf("function %d: unsupported local type 0x%02x", i, t)
			}
			locals = append(locals, LocalEntry{Count: n, ValType: t})
		}

		code, err := br.ReadRemaining()
		if err != nil {
			return err
		}
		m.Code = append(m.Code, FuncBody{Locals: locals, Code: code})
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var d DataSegment
		if d.Flags, err = r.ReadU32(); err != nil {
			return err
		}
		if d.Flags > 2 {
			return fmt.Errorf("invalid data segment flags: %d", d.Flags)
		}
		if d.Flags == 2 {
			if d.MemIdx, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if d.Flags != 1 {
			if d.Offset, err = readConstExpr(r); err != nil {
				return err
			}
		}
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		if d.Init, err = r.ReadBytes(int(size)); err != nil {
			return err
		}
		m.Data = append(m.Data, d)
	}
	return nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &n
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags > 1 {
		return Limits{}, fmt.Errorf("unsupported limits flags 0x%02x", flags)
	}
	var l Limits
	if l.Min, err = r.ReadU32(); err != nil {
		return Limits{}, err
	}
	if flags == 1 {
		if l.Max, err = r.ReadU32(); err != nil {
			return Limits{}, err
		}
		l.HasMax = true
		if l.Max < l.Min {
			return Limits{}, fmt.Errorf("limits max %d below min %d", l.Max, l.Min)
		}
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	elem, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if elem != ValFuncRef && elem != ValExternRef {
		return TableType{}, fmt.Errorf("unsupported table element type 0x%02x", elem)
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elem, Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if !isValType(vt) {
		return GlobalType{}, fmt.Errorf("unsupported global type 0x%02x", vt)
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid global mutability %d", mut)
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}
