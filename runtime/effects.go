package runtime

import (
	"context"

	"github.com/wippyai/wasm-executor/types"
)

// CallRequest is a fully decoded and charged ccall.
type CallRequest struct {
	Sender    types.Address
	Address   types.Address
	Value     *types.U256
	Gas       uint64 // forwarded gas in transaction units
	Input     []byte
	ResultLen uint32
}

// CallOutcome reports what a nested call did. Applied is false when the effect
// is not supported; the caller then fails the invocation.
type CallOutcome struct {
	Applied bool
	Status  int32  // 0 on success, -1 on failure or revert
	GasLeft uint64 // unused forwarded gas in transaction units
	Data    []byte
}

// CreateRequest is a fully decoded and charged create.
type CreateRequest struct {
	Sender    types.Address
	Endowment *types.U256
	Code      []byte
	Gas       uint64 // gas made available to the constructor, transaction units
}

// CreateOutcome reports what a nested creation did.
type CreateOutcome struct {
	Applied bool
	Status  int32
	Address types.Address
	GasLeft uint64
}

// Effects applies the state-mutating part of ccall, create and suicide once
// the runtime has decoded arguments and charged gas.
type Effects interface {
	Call(ctx context.Context, req CallRequest) (CallOutcome, error)
	Create(ctx context.Context, req CreateRequest) (CreateOutcome, error)
	Suicide(ctx context.Context, contract, refund types.Address) (applied bool, err error)
}

// Unimplemented is the default Effects. Every effect reports not applied.
type Unimplemented struct{}

func (Unimplemented) Call(context.Context, CallRequest) (CallOutcome, error) {
	return CallOutcome{}, nil
}

func (Unimplemented) Create(context.Context, CreateRequest) (CreateOutcome, error) {
	return CreateOutcome{}, nil
}

func (Unimplemented) Suicide(context.Context, types.Address, types.Address) (bool, error) {
	return false, nil
}
