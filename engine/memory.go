package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	wasmexecutor "github.com/wippyai/wasm-executor"
)

// WazeroMemory wraps wazero memory to implement wasmexecutor.Memory
type WazeroMemory struct {
	mem api.Memory
}

// Read returns a copy; wazero hands out a view that is invalidated by memory.grow.
func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return append([]byte(nil), data...), nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	ok := m.mem.Write(offset, data)
	if !ok {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds")
	}
	return val, nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	ok := m.mem.WriteUint32Le(offset, value)
	if !ok {
		return fmt.Errorf("write out of bounds")
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// Compile-time check that WazeroMemory implements wasmexecutor.Memory and MemorySizer
var _ wasmexecutor.Memory = (*WazeroMemory)(nil)
var _ wasmexecutor.MemorySizer = (*WazeroMemory)(nil)
