package runtime

import (
	"context"
	"math/bits"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/types"
)

func (r *Runtime) storageRead(ctx context.Context, keyPtr, valPtr uint32) error {
	key, err := r.H256At(keyPtr)
	if err != nil {
		return err
	}
	val, err := r.state.StorageAt(ctx, r.params.Address, key)
	if err != nil {
		return r.providerCall("storage_at", err)
	}
	if err := r.AdjustedCharge(r.sched.SloadGas); err != nil {
		return err
	}
	return r.write(valPtr, val[:])
}

func (r *Runtime) storageWrite(ctx context.Context, keyPtr, valPtr uint32) error {
	key, err := r.H256At(keyPtr)
	if err != nil {
		return err
	}
	val, err := r.H256At(valPtr)
	if err != nil {
		return err
	}
	former, err := r.state.StorageAt(ctx, r.params.Address, key)
	if err != nil {
		return r.providerCall("storage_at", err)
	}

	zero := types.H256{}
	cost := r.sched.SstoreResetGas
	if former == zero && val != zero {
		cost = r.sched.SstoreSetGas
	}
	if err := r.AdjustedCharge(cost); err != nil {
		return err
	}

	r.state.SetStorage(r.params.Address, key, val)

	if former != zero && val == zero {
		r.refund += r.sched.SstoreRefundGas
	}
	return nil
}

func (r *Runtime) ret(ptr, length uint32) error {
	data, err := r.read(ptr, length)
	if err != nil {
		return err
	}
	r.result = data
	Logger().Debug("contract returned", zap.Uint32("len", length), zap.Uint32("ptr", ptr))
	return ErrReturn
}

func (r *Runtime) fetchInput(ptr uint32) error {
	n := uint64(len(r.params.Args))
	hi, cost := bits.Mul64(n, uint64(r.sched.Wasm.Memcpy))
	if err := r.OverflowCharge(cost, hi == 0); err != nil {
		return err
	}
	return r.write(ptr, r.params.Args)
}

func (r *Runtime) panic(ptr, length uint32) error {
	raw, err := r.read(ptr, length)
	if err != nil {
		return err
	}
	msg := decodePanicPayload(raw).String()
	Logger().Debug("contract panicked", zap.String("message", msg), zap.Stringer("address", r.params.Address))
	return errors.Panic(msg)
}

func (r *Runtime) debug(ptr, length uint32) error {
	raw, err := r.read(ptr, length)
	if err != nil {
		return err
	}
	if !utf8.Valid(raw) {
		return errors.BadUTF8(raw)
	}
	Logger().Debug("contract debug message", zap.String("message", string(raw)), zap.Stringer("address", r.params.Address))
	return nil
}

// ccall decodes and charges a nested call. A negative status is returned to the
// contract when the balance check fails or the forwarded gas overflows.
func (r *Runtime) ccall(ctx context.Context, gas uint64, addrPtr, valPtr, inputPtr, inputLen, resultPtr, resultLen uint32) (int32, error) {
	addr, err := r.AddressAt(addrPtr)
	if err != nil {
		return 0, err
	}
	val, err := r.U256At(valPtr)
	if err != nil {
		return 0, err
	}

	bal, err := r.balance(ctx)
	if err != nil {
		return 0, err
	}
	if bal.Lt(val) {
		Logger().Debug("call rejected by balance check", zap.Stringer("to", addr))
		return -1, nil
	}

	if err := r.AdjustedCharge(r.sched.CallGas); err != nil {
		return 0, err
	}

	input, err := r.read(inputPtr, inputLen)
	if err != nil {
		return 0, err
	}

	adjustedGas, ok := r.adjust(gas)
	if !ok {
		Logger().Debug("call gas overflowed", zap.Uint64("gas", gas))
		return -1, nil
	}
	if err := r.Charge(adjustedGas); err != nil {
		return 0, err
	}

	out, err := r.effects.Call(ctx, CallRequest{
		Sender:    r.params.Address,
		Address:   addr,
		Value:     val,
		Gas:       gas,
		Input:     input,
		ResultLen: resultLen,
	})
	if err != nil {
		return 0, err
	}
	if !out.Applied {
		return 0, errors.Panic("not completed")
	}

	result := make([]byte, resultLen)
	copy(result, out.Data)

	if back, ok := r.adjust(out.GasLeft); ok {
		r.gasCounter -= min(back, adjustedGas)
	}
	if err := r.write(resultPtr, result); err != nil {
		return 0, err
	}
	return out.Status, nil
}

// create decodes and charges a nested contract creation.
func (r *Runtime) create(ctx context.Context, endowmentPtr, codePtr, codeLen, resultPtr uint32) (int32, error) {
	endowment, err := r.U256At(endowmentPtr)
	if err != nil {
		return 0, err
	}
	code, err := r.read(codePtr, codeLen)
	if err != nil {
		return 0, err
	}

	bal, err := r.balance(ctx)
	if err != nil {
		return 0, err
	}
	if bal.Lt(endowment) {
		return -1, nil
	}

	if err := r.AdjustedCharge(r.sched.CreateGas); err != nil {
		return 0, err
	}
	hi, dataGas := bits.Mul64(r.sched.CreateDataGas, uint64(len(code)))
	if err := r.AdjustedOverflowCharge(dataGas, hi == 0); err != nil {
		return 0, err
	}

	available, err := r.ExternalGasLeft()
	if err != nil {
		return 0, err
	}

	out, err := r.effects.Create(ctx, CreateRequest{
		Sender:    r.params.Address,
		Endowment: endowment,
		Code:      code,
		Gas:       available,
	})
	if err != nil {
		return 0, err
	}
	if !out.Applied {
		return 0, errors.Panic("not completed")
	}

	if left, ok := r.adjust(out.GasLeft); ok {
		r.gasCounter = r.gasLimit - min(left, r.gasLimit-r.gasCounter)
	}
	if out.Status != 0 {
		return out.Status, nil
	}
	if err := r.write(resultPtr, out.Address[:]); err != nil {
		return 0, err
	}
	return 0, nil
}

func (r *Runtime) suicide(ctx context.Context, refundPtr uint32) error {
	refund, err := r.AddressAt(refundPtr)
	if err != nil {
		return err
	}

	exists, err := r.state.Provider().Exist(ctx, refund)
	if err != nil {
		return r.providerCall("exist", err)
	}
	cost := r.sched.SuicideToNewAccountGas
	if exists {
		cost = r.sched.SuicideGas
	}
	if err := r.AdjustedCharge(cost); err != nil {
		return err
	}

	applied, err := r.effects.Suicide(ctx, r.params.Address, refund)
	if err != nil {
		return err
	}
	if !applied {
		return errors.Panic("not completed")
	}
	return ErrSuicide
}

func (r *Runtime) returnAddress(ptr uint32, addr types.Address) error {
	if err := r.Charge(uint64(r.sched.Wasm.StaticAddress)); err != nil {
		return err
	}
	return r.write(ptr, addr[:])
}

func (r *Runtime) returnU256(ptr uint32, v *types.U256) error {
	if err := r.Charge(uint64(r.sched.Wasm.StaticU256)); err != nil {
		return err
	}
	word := types.U256ToBig(v)
	return r.write(ptr, word[:])
}

func (r *Runtime) blockHash(ctx context.Context, number uint64, ptr uint32) error {
	if err := r.AdjustedCharge(r.sched.BlockhashGas); err != nil {
		return err
	}
	hash, err := r.state.Provider().BlockHash(ctx, number)
	if err != nil {
		return r.providerCall("block_hash", err)
	}
	return r.write(ptr, hash[:])
}

func (r *Runtime) blockNumber(ctx context.Context) (uint64, error) {
	n, err := r.state.Provider().BlockNumber(ctx)
	return n, r.providerCall("block_number", err)
}

func (r *Runtime) timestamp(ctx context.Context) (uint64, error) {
	ts, err := r.state.Provider().Timestamp(ctx)
	return ts, r.providerCall("timestamp", err)
}

func (r *Runtime) coinbase(ctx context.Context, ptr uint32) error {
	author, err := r.state.Provider().BlockAuthor(ctx)
	if err != nil {
		return r.providerCall("block_author", err)
	}
	return r.returnAddress(ptr, author)
}

func (r *Runtime) difficulty(ctx context.Context, ptr uint32) error {
	d, err := r.state.Provider().Difficulty(ctx)
	if err != nil {
		return r.providerCall("difficulty", err)
	}
	return r.returnU256(ptr, d)
}

func (r *Runtime) gasLimitOfBlock(ctx context.Context, ptr uint32) error {
	g, err := r.state.Provider().GasLimit(ctx)
	if err != nil {
		return r.providerCall("gas_limit", err)
	}
	return r.returnU256(ptr, g)
}

func (r *Runtime) elog(topicPtr, topicCount, dataPtr, dataLen uint32) error {
	if topicCount > types.MaxLogTopics {
		return errors.Log(topicCount)
	}

	topicsGas := r.sched.LogGas + r.sched.LogTopicGas*uint64(topicCount)
	hi, dataGas := bits.Mul64(r.sched.LogDataGas, uint64(dataLen))
	total, carry := bits.Add64(dataGas, topicsGas, 0)
	if err := r.AdjustedOverflowCharge(total, hi == 0 && carry == 0); err != nil {
		return err
	}

	topics := make([]types.H256, topicCount)
	for i := uint32(0); i < topicCount; i++ {
		offset := uint64(topicPtr) + uint64(i)*types.WordLength
		if offset > uint64(^uint32(0)) {
			return errors.MemoryAccess(topicPtr, uint64(topicCount)*types.WordLength)
		}
		t, err := r.H256At(uint32(offset))
		if err != nil {
			return err
		}
		topics[i] = t
	}

	data, err := r.read(dataPtr, dataLen)
	if err != nil {
		return err
	}

	r.logs = append(r.logs, types.LogEntry{
		Address: r.params.Address,
		Topics:  topics,
		Data:    data,
	})
	return nil
}
