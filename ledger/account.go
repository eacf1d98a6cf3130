package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/wippyai/wasm-executor/types"
)

// Account is the ledger's full view of one address.
type Account struct {
	Nonce   *uint256.Int
	Balance *uint256.Int
	Code    []byte
	Storage map[types.H256]types.H256
}

func newAccount() *Account {
	return &Account{
		Nonce:   new(uint256.Int),
		Balance: new(uint256.Int),
		Storage: make(map[types.H256]types.H256),
	}
}

func (a *Account) clone() *Account {
	c := &Account{
		Nonce:   new(uint256.Int).Set(a.Nonce),
		Balance: new(uint256.Int).Set(a.Balance),
		Code:    append([]byte(nil), a.Code...),
		Storage: make(map[types.H256]types.H256, len(a.Storage)),
	}
	for k, v := range a.Storage {
		c.Storage[k] = v
	}
	return c
}

func (a *Account) snapshot() *types.StateAccount {
	return &types.StateAccount{
		Nonce:   new(uint256.Int).Set(a.Nonce),
		Balance: new(uint256.Int).Set(a.Balance),
		Code:    append([]byte(nil), a.Code...),
	}
}

// AddressFromAlias maps a human-readable alias to a stable address.
func AddressFromAlias(alias string) types.Address {
	return types.BytesToAddress(crypto.Keccak256([]byte(alias)))
}

// Block is the metadata of one committed block.
type Block struct {
	Number     uint64
	Hash       types.H256
	ParentHash types.H256
	Author     types.Address
	Timestamp  uint64
}

// Receipt records an applied transaction and its outcome.
type Receipt struct {
	Index    uint64
	TxHash   types.H256
	Block    uint64
	Sender   types.Address
	Contract types.Address
	GasLeft  *uint256.Int
	Data     []byte
	Logs     []types.LogEntry
}

func u256Big(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
