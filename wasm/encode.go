package wasm

import (
	"github.com/wippyai/wasm-executor/wasm/internal/binary"
)

// Encode serializes the module to the binary format.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()

	// Magic number and version
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		writeSection(w, SectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Kind)
			switch imp.Kind {
			case KindFunc:
				sec.WriteU32(imp.TypeIdx)
			case KindTable:
				writeTableType(sec, imp.Table)
			case KindMemory:
				writeLimits(sec, imp.Memory)
			case KindGlobal:
				writeGlobalType(sec, imp.Global)
			}
		}
		writeSection(w, SectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		writeU32Vec(sec, m.Funcs)
		writeSection(w, SectionFunction, sec.Bytes())
	}

	if len(m.Tables) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(sec, t)
		}
		writeSection(w, SectionTable, sec.Bytes())
	}

	if len(m.Memories) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Memories)))
		for _, l := range m.Memories {
			writeLimits(sec, l)
		}
		writeSection(w, SectionMemory, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			sec.WriteBytes(g.Init)
		}
		writeSection(w, SectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.WriteName(e.Name)
			sec.Byte(e.Kind)
			sec.WriteU32(e.Index)
		}
		writeSection(w, SectionExport, sec.Bytes())
	}

	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		writeSection(w, SectionStart, sec.Bytes())
	}

	if len(m.Elements) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Elements)))
		for _, e := range m.Elements {
			sec.WriteU32(e.Flags)
			if e.hasTableIdx() {
				sec.WriteU32(e.TableIdx)
			}
			if e.hasOffset() {
				sec.WriteBytes(e.Offset)
			}
			if e.hasElemKind() {
				sec.Byte(e.ElemKind)
			}
			if e.usesExprs() {
				sec.WriteU32(uint32(len(e.Exprs)))
				for _, expr := range e.Exprs {
					sec.WriteBytes(expr)
				}
			} else {
				writeU32Vec(sec, e.FuncIdxs)
			}
		}
		writeSection(w, SectionElement, sec.Bytes())
	}

	if m.DataCount != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.DataCount)
		writeSection(w, SectionDataCount, sec.Bytes())
	}

	if len(m.Code) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			bodyBuf := binary.NewWriter()
			bodyBuf.WriteU32(uint32(len(body.Locals)))
			for _, local := range body.Locals {
				bodyBuf.WriteU32(local.Count)
				bodyBuf.Byte(local.ValType)
			}
			bodyBuf.WriteBytes(body.Code)
			sec.WriteU32(uint32(bodyBuf.Len()))
			sec.WriteBytes(bodyBuf.Bytes())
		}
		writeSection(w, SectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.WriteU32(d.Flags)
			if d.Flags == 2 {
				sec.WriteU32(d.MemIdx)
			}
			if d.Flags != 1 {
				sec.WriteBytes(d.Offset)
			}
			sec.WriteU32(uint32(len(d.Init)))
			sec.WriteBytes(d.Init)
		}
		writeSection(w, SectionData, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

func writeValTypes(w *binary.Writer, types []byte) {
	w.WriteU32(uint32(len(types)))
	w.WriteBytes(types)
}

func writeU32Vec(w *binary.Writer, vs []uint32) {
	w.WriteU32(uint32(len(vs)))
	for _, v := range vs {
		w.WriteU32(v)
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	if l.HasMax {
		w.Byte(1)
		w.WriteU32(l.Min)
		w.WriteU32(l.Max)
		return
	}
	w.Byte(0)
	w.WriteU32(l.Min)
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(t.ElemType)
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(g.ValType)
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}
