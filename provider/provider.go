// Package provider defines the capability through which an execution reads and
// writes account and contract storage state.
//
// Implementations may be in-process (see package ledger) or remote (see package
// rpc). Every method takes a context because a remote call parks the caller
// until the response arrives.
package provider

import (
	"context"

	"github.com/wippyai/wasm-executor/types"
)

// Provider is the state accessor handed to each execution.
type Provider interface {
	Exist(ctx context.Context, addr types.Address) (bool, error)
	Account(ctx context.Context, addr types.Address) (*types.StateAccount, error)
	UpdateAccount(ctx context.Context, addr types.Address, balance, nonce *types.U256) error
	CreateContract(ctx context.Context, addr types.Address, code []byte) error
	StorageAt(ctx context.Context, addr types.Address, key types.H256) (types.H256, error)
	SetStorage(ctx context.Context, addr types.Address, key, value types.H256) error
	Timestamp(ctx context.Context) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, number uint64) (types.H256, error)
	BlockAuthor(ctx context.Context) (types.Address, error)
	Difficulty(ctx context.Context) (*types.U256, error)
	GasLimit(ctx context.Context) (*types.U256, error)
}
