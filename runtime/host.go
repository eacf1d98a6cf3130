package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-executor/errors"
)

// Host function indices. The order is part of the contract ABI.
const (
	StorageReadFunc = iota
	StorageWriteFunc
	RetFunc
	GasFunc
	InputLengthFunc
	FetchInputFunc
	PanicFunc
	DebugFunc
	CCallFunc
	ValueFunc
	CreateFunc
	SuicideFunc
	BlockHashFunc
	BlockNumberFunc
	CoinbaseFunc
	DifficultyFunc
	GasLimitFunc
	TimestampFunc
	AddressFunc
	SenderFunc
	OriginFunc
	ElogFunc
	GasLeftFunc
)

// HostFunc describes one entry of the env module.
type HostFunc struct {
	Index   int
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// HostFuncs is the fixed env table exposed to contracts.
var HostFuncs = []HostFunc{
	{StorageReadFunc, "storage_read", []api.ValueType{i32, i32}, nil},
	{StorageWriteFunc, "storage_write", []api.ValueType{i32, i32}, nil},
	{RetFunc, "ret", []api.ValueType{i32, i32}, nil},
	{GasFunc, "gas", []api.ValueType{i32}, nil},
	{InputLengthFunc, "input_length", nil, []api.ValueType{i32}},
	{FetchInputFunc, "fetch_input", []api.ValueType{i32}, nil},
	{PanicFunc, "panic", []api.ValueType{i32, i32}, nil},
	{DebugFunc, "debug", []api.ValueType{i32, i32}, nil},
	{CCallFunc, "ccall", []api.ValueType{i64, i32, i32, i32, i32, i32, i32}, []api.ValueType{i32}},
	{ValueFunc, "value", []api.ValueType{i32}, nil},
	{CreateFunc, "create", []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}},
	{SuicideFunc, "suicide", []api.ValueType{i32}, nil},
	{BlockHashFunc, "blockhash", []api.ValueType{i64, i32}, nil},
	{BlockNumberFunc, "blocknumber", nil, []api.ValueType{i64}},
	{CoinbaseFunc, "coinbase", []api.ValueType{i32}, nil},
	{DifficultyFunc, "difficulty", []api.ValueType{i32}, nil},
	{GasLimitFunc, "gaslimit", []api.ValueType{i32}, nil},
	{TimestampFunc, "timestamp", nil, []api.ValueType{i64}},
	{AddressFunc, "address", []api.ValueType{i32}, nil},
	{SenderFunc, "sender", []api.ValueType{i32}, nil},
	{OriginFunc, "origin", []api.ValueType{i32}, nil},
	{ElogFunc, "elog", []api.ValueType{i32, i32, i32, i32}, nil},
	{GasLeftFunc, "gasleft", nil, []api.ValueType{i64}},
}

func u32(stack []uint64, i int) uint32 { return api.DecodeU32(stack[i]) }

// Invoke runs host function index against stack. Failures are raised as panics
// carrying the typed error so the engine aborts the contract.
func (r *Runtime) Invoke(ctx context.Context, index int, stack []uint64) {
	var err error
	switch index {
	case StorageReadFunc:
		err = r.storageRead(ctx, u32(stack, 0), u32(stack, 1))
	case StorageWriteFunc:
		err = r.storageWrite(ctx, u32(stack, 0), u32(stack, 1))
	case RetFunc:
		err = r.ret(u32(stack, 0), u32(stack, 1))
	case GasFunc:
		err = r.Charge(uint64(u32(stack, 0)))
	case InputLengthFunc:
		stack[0] = api.EncodeU32(uint32(len(r.params.Args)))
	case FetchInputFunc:
		err = r.fetchInput(u32(stack, 0))
	case PanicFunc:
		err = r.panic(u32(stack, 0), u32(stack, 1))
	case DebugFunc:
		err = r.debug(u32(stack, 0), u32(stack, 1))
	case CCallFunc:
		var status int32
		status, err = r.ccall(ctx, stack[0], u32(stack, 1), u32(stack, 2), u32(stack, 3), u32(stack, 4), u32(stack, 5), u32(stack, 6))
		stack[0] = api.EncodeI32(status)
	case ValueFunc:
		err = r.returnU256(u32(stack, 0), r.params.Value)
	case CreateFunc:
		var status int32
		status, err = r.create(ctx, u32(stack, 0), u32(stack, 1), u32(stack, 2), u32(stack, 3))
		stack[0] = api.EncodeI32(status)
	case SuicideFunc:
		err = r.suicide(ctx, u32(stack, 0))
	case BlockHashFunc:
		err = r.blockHash(ctx, stack[0], u32(stack, 1))
	case BlockNumberFunc:
		var n uint64
		n, err = r.blockNumber(ctx)
		stack[0] = n
	case CoinbaseFunc:
		err = r.coinbase(ctx, u32(stack, 0))
	case DifficultyFunc:
		err = r.difficulty(ctx, u32(stack, 0))
	case GasLimitFunc:
		err = r.gasLimitOfBlock(ctx, u32(stack, 0))
	case TimestampFunc:
		var ts uint64
		ts, err = r.timestamp(ctx)
		stack[0] = ts
	case AddressFunc:
		err = r.returnAddress(u32(stack, 0), r.params.Address)
	case SenderFunc:
		err = r.returnAddress(u32(stack, 0), r.params.Sender)
	case OriginFunc:
		err = r.returnAddress(u32(stack, 0), r.params.Origin)
	case ElogFunc:
		err = r.elog(u32(stack, 0), u32(stack, 1), u32(stack, 2), u32(stack, 3))
	case GasLeftFunc:
		var left uint64
		left, err = r.ExternalGasLeft()
		stack[0] = left
	default:
		Logger().DPanic("unknown host function index")
		err = errors.InvalidHostIndex(index)
	}
	if err != nil {
		panic(err)
	}
}
