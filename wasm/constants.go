package wasm

// Binary format constants
const (
	Magic   uint32 = 0x6d736100 // "\0asm"
	Version uint32 = 1
)

// PageSize is the size of one linear memory page.
const PageSize = 65536

// MemoryMaxPages is the page limit of a 32-bit linear memory.
const MemoryMaxPages = 65536

// Section IDs
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
)

// External kinds used by imports and exports
const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

// FuncTypeByte introduces a function type in the type section.
const FuncTypeByte byte = 0x60

// Value types
const (
	ValI32       byte = 0x7F
	ValI64       byte = 0x7E
	ValF32       byte = 0x7D
	ValF64       byte = 0x7C
	ValV128      byte = 0x7B
	ValFuncRef   byte = 0x70
	ValExternRef byte = 0x6F
)

// BlockTypeEmpty is the block type of a block with no results.
const BlockTypeEmpty byte = 0x40

// Control opcodes
const (
	OpUnreachable        byte = 0x00
	OpNop                byte = 0x01
	OpBlock              byte = 0x02
	OpLoop               byte = 0x03
	OpIf                 byte = 0x04
	OpElse               byte = 0x05
	OpTry                byte = 0x06
	OpThrow              byte = 0x08
	OpEnd                byte = 0x0B
	OpBr                 byte = 0x0C
	OpBrIf               byte = 0x0D
	OpBrTable            byte = 0x0E
	OpReturn             byte = 0x0F
	OpCall               byte = 0x10
	OpCallIndirect       byte = 0x11
	OpReturnCall         byte = 0x12
	OpReturnCallIndirect byte = 0x13
	OpCallRef            byte = 0x14
	OpReturnCallRef      byte = 0x15
	OpTryTable           byte = 0x1F
)

// Parametric and variable opcodes
const (
	OpDrop       byte = 0x1A
	OpSelect     byte = 0x1B
	OpSelectType byte = 0x1C
	OpLocalGet   byte = 0x20
	OpLocalSet   byte = 0x21
	OpLocalTee   byte = 0x22
	OpGlobalGet  byte = 0x23
	OpGlobalSet  byte = 0x24
	OpTableGet   byte = 0x25
	OpTableSet   byte = 0x26
)

// Memory opcodes
const (
	OpI32Load    byte = 0x28
	OpI64Load    byte = 0x29
	OpF32Load    byte = 0x2A
	OpF64Load    byte = 0x2B
	OpI32Load8S  byte = 0x2C
	OpI32Load8U  byte = 0x2D
	OpI32Load16S byte = 0x2E
	OpI32Load16U byte = 0x2F
	OpI64Load8S  byte = 0x30
	OpI64Load8U  byte = 0x31
	OpI64Load16S byte = 0x32
	OpI64Load16U byte = 0x33
	OpI64Load32S byte = 0x34
	OpI64Load32U byte = 0x35
	OpI32Store   byte = 0x36
	OpI64Store   byte = 0x37
	OpF32Store   byte = 0x38
	OpF64Store   byte = 0x39
	OpI32Store8  byte = 0x3A
	OpI32Store16 byte = 0x3B
	OpI64Store8  byte = 0x3C
	OpI64Store16 byte = 0x3D
	OpI64Store32 byte = 0x3E
	OpMemorySize byte = 0x3F
	OpMemoryGrow byte = 0x40
)

// Numeric opcodes. Everything from OpI32Eqz to OpI64Extend32S takes no
// immediates.
const (
	OpI32Const     byte = 0x41
	OpI64Const     byte = 0x42
	OpF32Const     byte = 0x43
	OpF64Const     byte = 0x44
	OpI32Eqz       byte = 0x45
	OpI32Eq        byte = 0x46
	OpI32Ne        byte = 0x47
	OpI32LtU       byte = 0x49
	OpI32GtU       byte = 0x4B
	OpI32GeU       byte = 0x4F
	OpI64Eqz       byte = 0x50
	OpI32Add       byte = 0x6A
	OpI32Sub       byte = 0x6B
	OpI32Mul       byte = 0x6C
	OpI32DivS      byte = 0x6D
	OpI32DivU      byte = 0x6E
	OpI32RemS      byte = 0x6F
	OpI32RemU      byte = 0x70
	OpI32And       byte = 0x71
	OpI32Or        byte = 0x72
	OpI32ShrU      byte = 0x76
	OpI64Mul       byte = 0x7E
	OpI64DivS      byte = 0x7F
	OpI64DivU      byte = 0x80
	OpI64RemS      byte = 0x81
	OpI64RemU      byte = 0x82
	OpF32Mul       byte = 0x94
	OpF32Div       byte = 0x95
	OpF64Mul       byte = 0xA2
	OpF64Div       byte = 0xA3
	OpI64Extend32S byte = 0xC4
)

// Reference opcodes
const (
	OpRefNull   byte = 0xD0
	OpRefIsNull byte = 0xD1
	OpRefFunc   byte = 0xD2
)

// Prefixes
const (
	OpPrefixGC      byte = 0xFB
	OpPrefixMisc    byte = 0xFC
	OpPrefixSIMD    byte = 0xFD
	OpPrefixThreads byte = 0xFE
)

// 0xFC sub-opcodes
const (
	MiscI32TruncSatF32S uint32 = 0x00
	MiscI64TruncSatF64U uint32 = 0x07
	MiscMemoryInit      uint32 = 0x08
	MiscDataDrop        uint32 = 0x09
	MiscMemoryCopy      uint32 = 0x0A
	MiscMemoryFill      uint32 = 0x0B
	MiscTableInit       uint32 = 0x0C
	MiscElemDrop        uint32 = 0x0D
	MiscTableCopy       uint32 = 0x0E
	MiscTableGrow       uint32 = 0x0F
	MiscTableSize       uint32 = 0x10
	MiscTableFill       uint32 = 0x11
)
