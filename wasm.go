package wasmexecutor

// Memory is a contract's linear memory as seen by host functions.
// Every access is bounds-checked.
type Memory interface {
	// Read returns a copy of length bytes at offset.
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}
