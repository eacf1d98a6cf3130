package wasm

import "fmt"

// Validate checks index references and section counts. Instruction typing is
// left to the compiler.
func (m *Module) Validate() error {
	if err := m.validateTypeIndices(); err != nil {
		return err
	}
	if err := m.validateFunctionIndices(); err != nil {
		return err
	}
	if err := m.validateTableIndices(); err != nil {
		return err
	}
	if err := m.validateMemoryIndices(); err != nil {
		return err
	}
	if err := m.validateGlobalIndices(); err != nil {
		return err
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	if err := m.validateDataCount(); err != nil {
		return err
	}
	if err := m.validateCodeCount(); err != nil {
		return err
	}
	return m.validateMemoryLimits()
}

// ParseModuleValidate parses a WebAssembly binary and validates it.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))
	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("function %d references invalid type index %d", i, typeIdx)
		}
	}
	for i, imp := range m.Imports {
		if imp.Kind == KindFunc && imp.TypeIdx >= numTypes {
			return fmt.Errorf("import %d (%s.%s) references invalid type index %d", i, imp.Module, imp.Name, imp.TypeIdx)
		}
	}
	return nil
}

func (m *Module) validateFunctionIndices() error {
	numFuncs := m.ImportedFuncCount() + uint32(len(m.Funcs))

	if m.Start != nil && *m.Start >= numFuncs {
		return fmt.Errorf("start function index %d exceeds function count %d", *m.Start, numFuncs)
	}
	for i, elem := range m.Elements {
		for j, funcIdx := range elem.FuncIdxs {
			if funcIdx >= numFuncs {
				return fmt.Errorf("element %d, entry %d references invalid function index %d", i, j, funcIdx)
			}
		}
	}
	for i, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Index >= numFuncs {
			return fmt.Errorf("export %d (%s) references invalid function index %d", i, exp.Name, exp.Index)
		}
	}
	return nil
}

func (m *Module) validateTableIndices() error {
	numTables := uint32(m.importedCount(KindTable) + len(m.Tables))
	for i, elem := range m.Elements {
		// Passive and declarative segments don't reference tables
		if elem.hasOffset() && elem.TableIdx >= numTables {
			return fmt.Errorf("element %d references invalid table index %d", i, elem.TableIdx)
		}
	}
	for i, exp := range m.Exports {
		if exp.Kind == KindTable && exp.Index >= numTables {
			return fmt.Errorf("export %d (%s) references invalid table index %d", i, exp.Name, exp.Index)
		}
	}
	return nil
}

func (m *Module) validateMemoryIndices() error {
	numMemories := uint32(m.importedCount(KindMemory) + len(m.Memories))
	for i, data := range m.Data {
		if data.Flags != 1 && data.MemIdx >= numMemories {
			return fmt.Errorf("data segment %d references invalid memory index %d", i, data.MemIdx)
		}
	}
	for i, exp := range m.Exports {
		if exp.Kind == KindMemory && exp.Index >= numMemories {
			return fmt.Errorf("export %d (%s) references invalid memory index %d", i, exp.Name, exp.Index)
		}
	}
	return nil
}

func (m *Module) validateGlobalIndices() error {
	numGlobals := uint32(m.importedCount(KindGlobal) + len(m.Globals))
	for i, exp := range m.Exports {
		if exp.Kind == KindGlobal && exp.Index >= numGlobals {
			return fmt.Errorf("export %d (%s) references invalid global index %d", i, exp.Name, exp.Index)
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]bool, len(m.Exports))
	for i, exp := range m.Exports {
		if seen[exp.Name] {
			return fmt.Errorf("duplicate export name %q at index %d", exp.Name, i)
		}
		seen[exp.Name] = true
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft := m.FuncTypeOf(*m.Start)
	if ft == nil {
		return fmt.Errorf("start function %d has no type", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function must have signature [] -> [], got [%d params] -> [%d results]",
			len(ft.Params), len(ft.Results))
	}
	return nil
}

func (m *Module) validateDataCount() error {
	if m.DataCount != nil && *m.DataCount != uint32(len(m.Data)) {
		return fmt.Errorf("data count section declares %d segments, but data section has %d",
			*m.DataCount, len(m.Data))
	}
	return nil
}

func (m *Module) validateCodeCount() error {
	if len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("code section has %d entries but function section has %d",
			len(m.Code), len(m.Funcs))
	}
	return nil
}

func (m *Module) validateMemoryLimits() error {
	for i, imp := range m.Imports {
		if imp.Kind == KindMemory {
			if err := validateMemoryLimits(imp.Memory, "imported memory", i); err != nil {
				return err
			}
		}
	}
	for i, l := range m.Memories {
		if err := validateMemoryLimits(l, "memory", i); err != nil {
			return err
		}
	}
	return nil
}

func validateMemoryLimits(l Limits, prefix string, idx int) error {
	if l.Min > MemoryMaxPages {
		return fmt.Errorf("%s %d: min pages %d exceeds maximum %d", prefix, idx, l.Min, MemoryMaxPages)
	}
	if l.HasMax && l.Max > MemoryMaxPages {
		return fmt.Errorf("%s %d: max pages %d exceeds maximum %d", prefix, idx, l.Max, MemoryMaxPages)
	}
	return nil
}
