package types

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wippyai/wasm-executor/wasm"
)

// Action is the sealed sum of transaction kinds: exactly one of Create or Call.
type Action interface {
	isAction()
}

// Create deploys Code at an address derived from the sender, code and salt.
type Create struct {
	Code []byte
	Salt H256
}

// Call invokes the contract stored at Address.
// For a plain transfer this is the receiver's address.
type Call struct {
	Address Address
}

func (Create) isAction() {}
func (Call) isAction()   {}

// Transaction is an immutable request to execute contract code.
type Transaction struct {
	Sender   Address
	Value    *U256
	Gas      *U256
	GasPrice *U256
	Action   Action
	Args     []byte
}

// NewCreate builds a contract creation with explicit constructor args.
func NewCreate(sender Address, value, gas, gasPrice *U256, code, args []byte, salt H256) *Transaction {
	return &Transaction{
		Sender:   sender,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Action:   Create{Code: code, Salt: salt},
		Args:     args,
	}
}

// NewCall builds a message call to contract.
func NewCall(sender, contract Address, value, gas, gasPrice *U256, args []byte) *Transaction {
	return &Transaction{
		Sender:   sender,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Action:   Call{Address: contract},
		Args:     args,
	}
}

// ContractAddress derives the address of a contract created by sender from code
// and salt. It is a pure function of its inputs.
func ContractAddress(sender Address, code []byte, salt H256) Address {
	return crypto.CreateAddress2(sender, salt, crypto.Keccak256(code))
}

// ActionType distinguishes how ActionParams were derived.
type ActionType int

const (
	ActionCreate ActionType = iota
	ActionCall
)

func (t ActionType) String() string {
	switch t {
	case ActionCreate:
		return "create"
	case ActionCall:
		return "call"
	default:
		return "unknown"
	}
}

// ActionParams is the normalized invocation derived from a Transaction.
// It is built once per call and never mutated.
type ActionParams struct {
	CodeAddress Address
	Address     Address
	Sender      Address
	Origin      Address
	Gas         *U256
	GasPrice    *U256
	Value       *U256
	ActionType  ActionType
	Code        []byte
	Args        []byte
}

// NewCreateEmbedded builds a contract creation from a buffer holding a module
// followed by its constructor arguments. The split point is the module's own
// declared size.
func NewCreateEmbedded(sender Address, value, gas, gasPrice *U256, codeWithArgs []byte, salt H256) *Transaction {
	n := wasm.PeekSize(codeWithArgs)
	if n == 0 {
		n = len(codeWithArgs)
	}
	code := append([]byte(nil), codeWithArgs[:n]...)
	args := append([]byte(nil), codeWithArgs[n:]...)
	return NewCreate(sender, value, gas, gasPrice, code, args, salt)
}
