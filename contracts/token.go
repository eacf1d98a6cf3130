package contracts

import (
	"encoding/binary"

	"github.com/wippyai/wasm-executor/runtime"
	"github.com/wippyai/wasm-executor/wasm"
)

// Function selectors, as they appear in the first four bytes of call input.
var (
	SelectorBalanceOf   = [4]byte{0x70, 0xa0, 0x82, 0x31}
	SelectorTransfer    = [4]byte{0xa9, 0x05, 0x9c, 0xbb}
	SelectorTotalSupply = [4]byte{0x18, 0x16, 0x0d, 0xdd}
)

// TotalSupplyKey is the storage slot holding the token's total supply.
// Balances live at slots made of 12 zero bytes followed by the holder address.
var TotalSupplyKey = [32]byte{0x01}

// Memory layout shared by both modules.
const (
	inputPtr    = 0    // call input
	keyPtr      = 1024 // 12 zero bytes + sender address
	valuePtr    = 1056
	supplyKey   = 1088
	otherValue  = 1120
	messagesPtr = 2048
	runtimePtr  = 4096
)

type imports struct {
	storageRead, storageWrite, ret, fetchInput, panic, sender uint32
}

var (
	i32  = []byte{wasm.ValI32}
	i32s = []byte{wasm.ValI32, wasm.ValI32}
)

func declareImports(b *wasm.Builder) imports {
	return imports{
		storageRead:  b.ImportFunc("env", "storage_read", i32s, nil),
		storageWrite: b.ImportFunc("env", "storage_write", i32s, nil),
		ret:          b.ImportFunc("env", "ret", i32s, nil),
		fetchInput:   b.ImportFunc("env", "fetch_input", i32, nil),
		panic:        b.ImportFunc("env", "panic", i32s, nil),
		sender:       b.ImportFunc("env", "sender", i32, nil),
	}
}

func selector(s [4]byte) int32 {
	return int32(binary.LittleEndian.Uint32(s[:]))
}

type message struct {
	ptr uint32
	raw []byte
}

func newMessage(ptr uint32, text string) message {
	return message{ptr: ptr, raw: runtime.EncodePanicPayload(text, "token.wasm", 0, 0)}
}

func (m message) raise(a *wasm.Asm, im imports) *wasm.Asm {
	return a.I32Const(int32(m.ptr)).I32Const(int32(len(m.raw))).Call(im.panic)
}

// Locals of the runtime call function.
const (
	localIndex = iota
	localDigit
	localCarry
	localSelector
)

// byteLoop emits a 32-byte big-endian add or subtract of b into a, leaving the
// final carry or borrow in localCarry.
func byteLoop(a *wasm.Asm, dst, src uint32, subtract bool) *wasm.Asm {
	a.I32Const(31).LocalSet(localIndex).
		I32Const(0).LocalSet(localCarry).
		Block().Loop().
		LocalGet(localIndex).Load(wasm.OpI32Load8U, dst).
		LocalGet(localIndex).Load(wasm.OpI32Load8U, src)
	if subtract {
		a.Op(wasm.OpI32Sub).LocalGet(localCarry).Op(wasm.OpI32Sub)
	} else {
		a.Op(wasm.OpI32Add).LocalGet(localCarry).Op(wasm.OpI32Add)
	}
	a.LocalSet(localDigit).
		LocalGet(localIndex).LocalGet(localDigit).Store(wasm.OpI32Store8, dst).
		LocalGet(localDigit)
	if subtract {
		a.I32Const(31)
	} else {
		a.I32Const(8)
	}
	return a.Op(wasm.OpI32ShrU).LocalSet(localCarry).
		LocalGet(localIndex).Op(wasm.OpI32Eqz).BrIf(1).
		LocalGet(localIndex).I32Const(1).Op(wasm.OpI32Sub).LocalSet(localIndex).
		Br(0).
		End().End()
}

// Runtime returns the deployed token code. It answers balanceOf(address),
// totalSupply() and transfer(address, amount), all with 32-byte word arguments.
func Runtime() []byte {
	b := wasm.NewBuilder()
	im := declareImports(b)
	b.Memory(wasm.Limits{Min: 1})

	insufficient := newMessage(messagesPtr, "insufficient balance")
	unknown := newMessage(messagesPtr+128, "unknown selector")

	a := wasm.NewAsm().
		I32Const(inputPtr).Call(im.fetchInput).
		I32Const(inputPtr).Load(wasm.OpI32Load, 0).LocalSet(localSelector)

	// balanceOf: the argument word is the holder's storage key.
	a.LocalGet(localSelector).I32Const(selector(SelectorBalanceOf)).Op(wasm.OpI32Eq).If().
		I32Const(inputPtr+4).I32Const(valuePtr).Call(im.storageRead).
		I32Const(valuePtr).I32Const(32).Call(im.ret).
		End()

	a.LocalGet(localSelector).I32Const(selector(SelectorTotalSupply)).Op(wasm.OpI32Eq).If().
		I32Const(supplyKey).I32Const(valuePtr).Call(im.storageRead).
		I32Const(valuePtr).I32Const(32).Call(im.ret).
		End()

	// transfer: debit the sender, then credit the recipient so a self-transfer
	// observes the pending debit.
	a.LocalGet(localSelector).I32Const(selector(SelectorTransfer)).Op(wasm.OpI32Eq).If().
		I32Const(keyPtr + 12).Call(im.sender).
		I32Const(keyPtr).I32Const(valuePtr).Call(im.storageRead)
	byteLoop(a, valuePtr, inputPtr+36, true)
	a.LocalGet(localCarry).If()
	insufficient.raise(a, im)
	a.End().
		I32Const(keyPtr).I32Const(valuePtr).Call(im.storageWrite).
		I32Const(inputPtr+4).I32Const(otherValue).Call(im.storageRead)
	byteLoop(a, otherValue, inputPtr+36, false)
	a.I32Const(inputPtr+4).I32Const(otherValue).Call(im.storageWrite).
		I32Const(0).I32Const(0).Call(im.ret).
		End()

	unknown.raise(a, im)

	fn := b.Func(nil, nil, []byte{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32}, a)
	b.ExportFunc("call", fn)
	b.Data(supplyKey, TotalSupplyKey[:])
	b.Data(insufficient.ptr, insufficient.raw)
	b.Data(unknown.ptr, unknown.raw)
	return b.Build()
}

// Token returns the deploy code. Its constructor argument is the initial
// supply as a 32-byte big-endian word, credited to the deployer; the returned
// payload is Runtime().
func Token() []byte {
	code := Runtime()

	b := wasm.NewBuilder()
	im := declareImports(b)
	b.Memory(wasm.Limits{Min: 1})

	a := wasm.NewAsm().
		I32Const(inputPtr).Call(im.fetchInput).
		I32Const(keyPtr + 12).Call(im.sender).
		I32Const(keyPtr).I32Const(inputPtr).Call(im.storageWrite).
		I32Const(supplyKey).I32Const(inputPtr).Call(im.storageWrite).
		I32Const(runtimePtr).I32Const(int32(len(code))).Call(im.ret)

	fn := b.Func(nil, nil, nil, a)
	b.ExportFunc("call", fn)
	b.Data(supplyKey, TotalSupplyKey[:])
	b.Data(runtimePtr, code)
	return b.Build()
}

// BalanceKey returns the storage slot of holder's balance.
func BalanceKey(holder [20]byte) [32]byte {
	var k [32]byte
	copy(k[12:], holder[:])
	return k
}

// BalanceOfArgs encodes a balanceOf call.
func BalanceOfArgs(holder [20]byte) []byte {
	k := BalanceKey(holder)
	return append(SelectorBalanceOf[:], k[:]...)
}

// TotalSupplyArgs encodes a totalSupply call.
func TotalSupplyArgs() []byte {
	return append([]byte(nil), SelectorTotalSupply[:]...)
}

// TransferArgs encodes a transfer of amount (big-endian word) to recipient.
func TransferArgs(to [20]byte, amount [32]byte) []byte {
	k := BalanceKey(to)
	out := append([]byte(nil), SelectorTransfer[:]...)
	out = append(out, k[:]...)
	return append(out, amount[:]...)
}
