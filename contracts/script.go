package contracts

import (
	"context"
	"fmt"

	"github.com/wippyai/wasm-executor/ledger"
	"github.com/wippyai/wasm-executor/provider"
	"github.com/wippyai/wasm-executor/types"
)

// ScriptGas is the gas attached to every scripted transaction.
const ScriptGas = 1_000_000

// InitialSupply is minted to the deployer: every bit set.
var InitialSupply = [32]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// TransferAmount is what the script sends from alice to bob.
var TransferAmount = [32]byte{
	0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// Executor runs one transaction against a provider. Both the in-process
// executor and the RPC client satisfy it.
type Executor interface {
	Execute(ctx context.Context, tx *types.Transaction, p provider.Provider) (*types.ResultData, error)
}

// Step is one scripted transaction and its outcome.
type Step struct {
	Name   string
	Tx     *types.Transaction
	Result *types.ResultData
}

// Script deploys the token as alice, transfers TransferAmount to bob and then
// queries totalSupply and bob's balance. Every step is committed to l as its
// own block.
func Script(ctx context.Context, x Executor, l *ledger.Ledger) ([]Step, error) {
	alice := ledger.AddressFromAlias("alice")
	bob := ledger.AddressFromAlias("bob")
	gas := types.NewU256(ScriptGas)
	zero := types.NewU256(0)

	var steps []Step
	run := func(name string, tx *types.Transaction) (*types.ResultData, error) {
		res, err := x.Execute(ctx, tx, l)
		if err != nil {
			l.Rollback()
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		l.IncNonce(tx.Sender)
		if _, err := l.AddTransaction(tx, res); err != nil {
			return nil, fmt.Errorf("%s: record: %w", name, err)
		}
		if err := l.Commit(); err != nil {
			return nil, fmt.Errorf("%s: commit: %w", name, err)
		}
		steps = append(steps, Step{Name: name, Tx: tx, Result: res})
		return res, nil
	}

	deploy := types.NewCreate(alice, zero, gas, zero, Token(), InitialSupply[:], types.H256{})
	deployed, err := run("deploy", deploy)
	if err != nil {
		return steps, err
	}
	token := deployed.Contract

	if _, err := run("transfer", types.NewCall(alice, token, zero, gas, zero, TransferArgs(bob, TransferAmount))); err != nil {
		return steps, err
	}
	if _, err := run("totalSupply", types.NewCall(alice, token, zero, gas, zero, TotalSupplyArgs())); err != nil {
		return steps, err
	}
	if _, err := run("balanceOf", types.NewCall(bob, token, zero, gas, zero, BalanceOfArgs(bob))); err != nil {
		return steps, err
	}
	return steps, nil
}
