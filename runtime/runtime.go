package runtime

import (
	"context"
	"math/bits"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/schedule"
	"github.com/wippyai/wasm-executor/state"
	"github.com/wippyai/wasm-executor/types"
)

// signal is a control condition raised through the sandbox. It ends execution
// successfully and is never reported to callers.
type signal string

func (s signal) Error() string { return string(s) }

const (
	// ErrReturn is raised by ret once the payload has been captured.
	ErrReturn signal = "contract returned"
	// ErrSuicide is raised once a self-destruct has been applied.
	ErrSuicide signal = "contract self-destructed"
)

// Runtime is the mutable context of one contract invocation. It is owned by a
// single execution and must not be shared.
type Runtime struct {
	sched      *schedule.Schedule
	params     *types.ActionParams
	state      *state.State
	memory     wasmexecutor.Memory
	effects    Effects
	gasCounter uint64
	gasLimit   uint64
	refund     uint64
	result     []byte
	logs       []types.LogEntry
}

// New returns a runtime with a gas limit already expressed in internal units.
func New(params *types.ActionParams, sched *schedule.Schedule, st *state.State, gasLimit uint64) *Runtime {
	return &Runtime{
		sched:    sched,
		params:   params,
		state:    st,
		effects:  Unimplemented{},
		gasLimit: gasLimit,
	}
}

// SetMemory binds the instance's linear memory.
func (r *Runtime) SetMemory(m wasmexecutor.Memory) { r.memory = m }

// SetEffects installs the handler for nested calls, creations and self-destructs.
func (r *Runtime) SetEffects(e Effects) { r.effects = e }

// Schedule returns the schedule in use.
func (r *Runtime) Schedule() *schedule.Schedule { return r.sched }

// Result returns the payload captured by ret.
func (r *Runtime) Result() []byte { return r.result }

// Logs returns the entries emitted so far.
func (r *Runtime) Logs() []types.LogEntry { return r.logs }

// Refund returns the accumulated storage-clear credit. It is recorded but not
// applied to the gas counter.
func (r *Runtime) Refund() uint64 { return r.refund }

// GasUsed returns the internal gas consumed so far.
func (r *Runtime) GasUsed() uint64 { return r.gasCounter }

// mulDiv computes a*mul/div over the full 128-bit product, reporting false
// if the quotient does not fit 64 bits.
func mulDiv(a, mul, div uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, mul)
	if div == 0 || hi >= div {
		return 0, false
	}
	q, _ := bits.Div64(hi, lo, div)
	return q, true
}

// chargeGas is the single primitive behind every charge. The counter only moves
// when the new total stays within the limit.
func (r *Runtime) chargeGas(amount uint64) bool {
	next, carry := bits.Add64(r.gasCounter, amount, 0)
	if carry != 0 || next > r.gasLimit {
		return false
	}
	r.gasCounter = next
	return true
}

// Charge consumes amount internal gas units.
func (r *Runtime) Charge(amount uint64) error {
	if !r.chargeGas(amount) {
		return errors.GasLimit()
	}
	return nil
}

// OverflowCharge charges amount unless its computation overflowed (ok == false).
func (r *Runtime) OverflowCharge(amount uint64, ok bool) error {
	if !ok {
		return errors.GasLimit()
	}
	return r.Charge(amount)
}

// AdjustedCharge charges a schedule cost scaled into internal units.
func (r *Runtime) AdjustedCharge(amount uint64) error {
	return r.AdjustedOverflowCharge(amount, true)
}

// AdjustedOverflowCharge scales amount by opcodes_div/opcodes_mul and charges it.
func (r *Runtime) AdjustedOverflowCharge(amount uint64, ok bool) error {
	if !ok {
		return errors.GasLimit()
	}
	adjusted, ok := r.adjust(amount)
	return r.OverflowCharge(adjusted, ok)
}

func (r *Runtime) adjust(amount uint64) (uint64, bool) {
	return mulDiv(amount, uint64(r.sched.Wasm.OpcodesDiv), uint64(r.sched.Wasm.OpcodesMul))
}

// GasLeft returns the remaining internal gas.
func (r *Runtime) GasLeft() (uint64, error) {
	if r.gasCounter > r.gasLimit {
		Logger().DPanic("gas counter exceeds limit")
		return 0, errors.InvalidGasState(r.gasCounter, r.gasLimit)
	}
	return r.gasLimit - r.gasCounter, nil
}

// ExternalGasLeft returns the remaining gas rescaled to transaction units.
func (r *Runtime) ExternalGasLeft() (uint64, error) {
	left, err := r.GasLeft()
	if err != nil {
		return 0, err
	}
	out, ok := mulDiv(left, uint64(r.sched.Wasm.OpcodesMul), uint64(r.sched.Wasm.OpcodesDiv))
	if !ok {
		return 0, errors.Wasm("gas left does not fit 64 bits", nil)
	}
	return out, nil
}

func (r *Runtime) read(ptr, length uint32) ([]byte, error) {
	if r.memory == nil {
		return nil, errors.MemoryAccess(ptr, uint64(length))
	}
	data, err := r.memory.Read(ptr, length)
	if err != nil {
		return nil, errors.MemoryAccess(ptr, uint64(length))
	}
	return data, nil
}

func (r *Runtime) write(ptr uint32, data []byte) error {
	if r.memory == nil {
		return errors.MemoryAccess(ptr, uint64(len(data)))
	}
	if err := r.memory.Write(ptr, data); err != nil {
		return errors.MemoryAccess(ptr, uint64(len(data)))
	}
	return nil
}

// H256At loads a 32-byte word from sandbox memory.
func (r *Runtime) H256At(ptr uint32) (types.H256, error) {
	b, err := r.read(ptr, types.WordLength)
	if err != nil {
		return types.H256{}, err
	}
	return types.BytesToH256(b), nil
}

// AddressAt loads a 20-byte address from sandbox memory.
func (r *Runtime) AddressAt(ptr uint32) (types.Address, error) {
	b, err := r.read(ptr, types.AddressLength)
	if err != nil {
		return types.Address{}, err
	}
	return types.BytesToAddress(b), nil
}

// U256At loads a big-endian 256-bit integer from sandbox memory.
func (r *Runtime) U256At(ptr uint32) (*types.U256, error) {
	b, err := r.read(ptr, types.WordLength)
	if err != nil {
		return nil, err
	}
	var word [types.WordLength]byte
	copy(word[:], b)
	return types.U256FromBig(word), nil
}

// Read copies length bytes out of sandbox memory.
func (r *Runtime) Read(ptr, length uint32) ([]byte, error) { return r.read(ptr, length) }

// Write copies data into sandbox memory.
func (r *Runtime) Write(ptr uint32, data []byte) error { return r.write(ptr, data) }

func (r *Runtime) providerCall(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errors.ErrProvider) {
		return err
	}
	return errors.Provider(op, err)
}

// balance returns the balance of the executing contract.
func (r *Runtime) balance(ctx context.Context) (*types.U256, error) {
	acc, err := r.state.Provider().Account(ctx, r.params.Address)
	if err != nil {
		if errors.Is(err, &errors.Error{Kind: errors.KindNotFound}) {
			return types.NewU256(0), nil
		}
		return nil, r.providerCall("account", err)
	}
	return acc.Balance, nil
}
