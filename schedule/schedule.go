// Package schedule holds the gas cost table consulted by the loader and the
// runtime. A Schedule is immutable for the duration of one execution.
package schedule

// Wasm holds the costs of sandbox operations. Instruction costs are expressed
// in internal gas units; host charges are scaled by OpcodesDiv/OpcodesMul.
type Wasm struct {
	Regular        uint32
	Div            uint32
	Mul            uint32
	Mem            uint32
	StaticU256     uint32
	StaticAddress  uint32
	InitialMem     uint32
	GrowMem        uint32
	Memcpy         uint32
	MaxStackHeight uint32
	OpcodesMul     uint32
	OpcodesDiv     uint32
	MaxMemoryPages uint32
}

// Schedule is the full gas cost table.
type Schedule struct {
	SloadGas               uint64
	SstoreSetGas           uint64
	SstoreResetGas         uint64
	SstoreRefundGas        uint64
	CallGas                uint64
	CreateGas              uint64
	CreateDataGas          uint64
	LogGas                 uint64
	LogTopicGas            uint64
	LogDataGas             uint64
	BlockhashGas           uint64
	SuicideGas             uint64
	SuicideToNewAccountGas uint64

	Wasm Wasm
}

// Default returns the schedule used by the executor unless overridden.
func Default() *Schedule {
	return &Schedule{
		SloadGas:               200,
		SstoreSetGas:           20000,
		SstoreResetGas:         5000,
		SstoreRefundGas:        15000,
		CallGas:                700,
		CreateGas:              32000,
		CreateDataGas:          200,
		LogGas:                 375,
		LogTopicGas:            375,
		LogDataGas:             8,
		BlockhashGas:           20,
		SuicideGas:             5000,
		SuicideToNewAccountGas: 25000,
		Wasm: Wasm{
			Regular:        1,
			Div:            16,
			Mul:            3,
			Mem:            2,
			StaticU256:     64,
			StaticAddress:  40,
			InitialMem:     4096,
			GrowMem:        8192,
			Memcpy:         1,
			MaxStackHeight: 64 * 1024,
			OpcodesMul:     3,
			OpcodesDiv:     8,
			MaxMemoryPages: 16,
		},
	}
}

// WithMaxMemoryPages returns a copy of s with the memory cap replaced.
func (s *Schedule) WithMaxMemoryPages(pages uint32) *Schedule {
	c := *s
	c.Wasm.MaxMemoryPages = pages
	return &c
}
