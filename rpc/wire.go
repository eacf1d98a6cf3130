package rpc

import (
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/types"
)

// Word is a 256-bit integer on the wire, little-endian.
type Word = [types.WordLength]byte

// CapabilityID names a capability registered with the caller's broker.
type CapabilityID uint32

// WireCreate is the Create action on the wire.
type WireCreate struct {
	Code []byte
	Salt [32]byte
}

// WireCall is the Call action on the wire.
type WireCall struct {
	Address [20]byte
}

// WireTransaction carries a transaction with fixed-width fields. Exactly one of
// Create and Call is set.
type WireTransaction struct {
	Sender   [20]byte
	Value    Word
	Gas      Word
	GasPrice Word
	Create   *WireCreate
	Call     *WireCall
	Args     []byte
}

// WireLog is a log entry on the wire.
type WireLog struct {
	Address [20]byte
	Topics  [][32]byte
	Data    []byte
}

// WireError carries a typed error across the connection.
type WireError struct {
	Phase  string
	Kind   string
	Op     string
	Detail string
}

// ExecuteArgs is the request of Executor.Execute.
type ExecuteArgs struct {
	Transaction WireTransaction
	Provider    CapabilityID
}

// ExecuteReply is the response of Executor.Execute. Err is set instead of the
// result fields when execution failed.
type ExecuteReply struct {
	GasLeft  Word
	Data     []byte
	Contract [20]byte
	Logs     []WireLog
	Err      *WireError
}

// EncodeTransaction converts tx to its wire form.
func EncodeTransaction(tx *types.Transaction) (WireTransaction, error) {
	w := WireTransaction{
		Sender:   tx.Sender,
		Value:    types.U256ToLE(tx.Value),
		Gas:      types.U256ToLE(tx.Gas),
		GasPrice: types.U256ToLE(tx.GasPrice),
		Args:     tx.Args,
	}
	switch a := tx.Action.(type) {
	case types.Create:
		w.Create = &WireCreate{Code: a.Code, Salt: a.Salt}
	case types.Call:
		w.Call = &WireCall{Address: a.Address}
	default:
		return WireTransaction{}, errors.InvalidInput(errors.PhaseWire, "transaction has no action")
	}
	return w, nil
}

// Decode converts w back to a transaction.
func (w *WireTransaction) Decode() (*types.Transaction, error) {
	tx := &types.Transaction{
		Sender:   w.Sender,
		Value:    types.U256FromLE(w.Value),
		Gas:      types.U256FromLE(w.Gas),
		GasPrice: types.U256FromLE(w.GasPrice),
		Args:     w.Args,
	}
	switch {
	case w.Create != nil && w.Call != nil:
		return nil, errors.InvalidInput(errors.PhaseWire, "transaction carries both create and call")
	case w.Create != nil:
		tx.Action = types.Create{Code: w.Create.Code, Salt: w.Create.Salt}
	case w.Call != nil:
		tx.Action = types.Call{Address: w.Call.Address}
	default:
		return nil, errors.InvalidInput(errors.PhaseWire, "transaction has no action")
	}
	return tx, nil
}

// EncodeResult fills the result fields of r.
func (r *ExecuteReply) EncodeResult(res *types.ResultData) {
	r.GasLeft = types.U256ToLE(res.GasLeft)
	r.Data = res.Data
	r.Contract = res.Contract
	r.Logs = make([]WireLog, len(res.Logs))
	for i, l := range res.Logs {
		topics := make([][32]byte, len(l.Topics))
		for j, t := range l.Topics {
			topics[j] = t
		}
		r.Logs[i] = WireLog{Address: l.Address, Topics: topics, Data: l.Data}
	}
}

// Result returns the decoded result, or the carried error.
func (r *ExecuteReply) Result() (*types.ResultData, error) {
	if err := r.Err.Err(); err != nil {
		return nil, err
	}
	res := &types.ResultData{
		GasLeft:  types.U256FromLE(r.GasLeft),
		Data:     r.Data,
		Contract: r.Contract,
	}
	if len(r.Logs) > 0 {
		res.Logs = make([]types.LogEntry, len(r.Logs))
	}
	for i, l := range r.Logs {
		topics := make([]types.H256, len(l.Topics))
		for j, t := range l.Topics {
			topics[j] = t
		}
		res.Logs[i] = types.LogEntry{Address: l.Address, Topics: topics, Data: l.Data}
	}
	return res, nil
}

// toWireError captures err for transmission. Untyped errors are reported with
// the fallback kind.
func toWireError(err error, phase errors.Phase, kind errors.Kind) *WireError {
	if err == nil {
		return nil
	}
	if e, ok := errors.As(err); ok {
		return &WireError{Phase: string(e.Phase), Kind: string(e.Kind), Op: e.Op, Detail: detailOf(e)}
	}
	return &WireError{Phase: string(phase), Kind: string(kind), Detail: err.Error()}
}

func detailOf(e *errors.Error) string {
	if e.Cause == nil {
		return e.Detail
	}
	if e.Detail == "" {
		return e.Cause.Error()
	}
	return e.Detail + ": " + e.Cause.Error()
}

// Err rebuilds the typed error. A nil WireError is no error.
func (w *WireError) Err() error {
	if w == nil {
		return nil
	}
	return &errors.Error{
		Phase:  errors.Phase(w.Phase),
		Kind:   errors.Kind(w.Kind),
		Op:     w.Op,
		Detail: w.Detail,
	}
}
