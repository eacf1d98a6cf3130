package runtime

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/ledger"
	"github.com/wippyai/wasm-executor/schedule"
	"github.com/wippyai/wasm-executor/state"
	"github.com/wippyai/wasm-executor/types"
)

// flatMemory is a bounds-checked byte slice standing in for linear memory.
type flatMemory []byte

func (m flatMemory) Read(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m)) {
		return nil, fmt.Errorf("out of range")
	}
	return append([]byte(nil), m[offset:end]...), nil
}

func (m flatMemory) Write(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m)) {
		return fmt.Errorf("out of range")
	}
	copy(m[offset:], data)
	return nil
}

func (m flatMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (m flatMemory) WriteU32(offset uint32, v uint32) error {
	return m.Write(offset, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

type fixture struct {
	rt       *Runtime
	mem      flatMemory
	ledger   *ledger.Ledger
	state    *state.State
	contract types.Address
}

func newFixture(t *testing.T, limit uint64) *fixture {
	t.Helper()
	l, err := ledger.New()
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	contract := ledger.AddressFromAlias("alice")
	params := &types.ActionParams{
		Address: contract,
		Sender:  ledger.AddressFromAlias("bob"),
		Origin:  ledger.AddressFromAlias("bob"),
		Value:   types.NewU256(7),
		Args:    []byte("input-bytes"),
	}
	st := state.New(l)
	rt := New(params, schedule.Default(), st, limit)
	mem := make(flatMemory, 1024)
	rt.SetMemory(mem)
	return &fixture{rt: rt, mem: mem, ledger: l, state: st, contract: contract}
}

func word(b byte) []byte {
	w := make([]byte, 32)
	w[31] = b
	return w
}

func isKind(err error, kind errors.Kind) bool {
	return errors.Is(err, &errors.Error{Kind: kind})
}

func TestChargeAccumulates(t *testing.T) {
	f := newFixture(t, 100)
	for _, amount := range []uint64{10, 20, 30} {
		if err := f.rt.Charge(amount); err != nil {
			t.Fatalf("Charge(%d): %v", amount, err)
		}
	}
	if f.rt.GasUsed() != 60 {
		t.Errorf("GasUsed = %d, want 60", f.rt.GasUsed())
	}
	left, err := f.rt.GasLeft()
	if err != nil || left != 40 {
		t.Errorf("GasLeft = %d, %v", left, err)
	}
}

func TestChargeExactLimit(t *testing.T) {
	f := newFixture(t, 100)
	if err := f.rt.Charge(100); err != nil {
		t.Fatalf("charging the whole limit should succeed: %v", err)
	}
	if err := f.rt.Charge(1); !isKind(err, errors.KindGasLimit) {
		t.Errorf("expected gas limit, got %v", err)
	}
	if f.rt.GasUsed() != 100 {
		t.Errorf("failed charge moved the counter to %d", f.rt.GasUsed())
	}
}

func TestChargeOverflowKeepsCounter(t *testing.T) {
	f := newFixture(t, ^uint64(0))
	if err := f.rt.Charge(5); err != nil {
		t.Fatal(err)
	}
	if err := f.rt.Charge(^uint64(0)); !isKind(err, errors.KindGasLimit) {
		t.Errorf("expected gas limit on wraparound, got %v", err)
	}
	if f.rt.GasUsed() != 5 {
		t.Errorf("counter = %d, want 5", f.rt.GasUsed())
	}
}

func TestAdjustedCharge(t *testing.T) {
	f := newFixture(t, 1_000_000)
	// 300 * 8 / 3
	if err := f.rt.AdjustedCharge(300); err != nil {
		t.Fatal(err)
	}
	if f.rt.GasUsed() != 800 {
		t.Errorf("GasUsed = %d, want 800", f.rt.GasUsed())
	}
	if err := f.rt.AdjustedOverflowCharge(1, false); !isKind(err, errors.KindGasLimit) {
		t.Errorf("overflowed amount should fail, got %v", err)
	}
	if err := f.rt.AdjustedCharge(^uint64(0)); !isKind(err, errors.KindGasLimit) {
		t.Errorf("unscalable amount should fail, got %v", err)
	}
	if f.rt.GasUsed() != 800 {
		t.Errorf("failed charges moved the counter to %d", f.rt.GasUsed())
	}
}

func TestExternalGasLeft(t *testing.T) {
	f := newFixture(t, 800)
	left, err := f.rt.ExternalGasLeft()
	if err != nil {
		t.Fatal(err)
	}
	if left != 300 {
		t.Errorf("ExternalGasLeft = %d, want 300", left)
	}
}

func TestExternalGasLeftLargeLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit uint64
		want  uint64
	}{
		{"above 2^64/3", 8_000_000_000_000_000_000, 3_000_000_000_000_000_000},
		{"max", math.MaxUint64, 6917529027641081855},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.limit)
			left, err := f.rt.ExternalGasLeft()
			if err != nil {
				t.Fatal(err)
			}
			if left != tt.want {
				t.Errorf("ExternalGasLeft = %d, want %d", left, tt.want)
			}
		})
	}
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		a, mul, div uint64
		want        uint64
		ok          bool
	}{
		{300, 8, 3, 800, true},
		{math.MaxUint64, 3, 8, 6917529027641081855, true},
		{math.MaxUint64, 8, 3, 0, false},
		{1, 1, 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := mulDiv(tt.a, tt.mul, tt.div)
		if got != tt.want || ok != tt.ok {
			t.Errorf("mulDiv(%d, %d, %d) = %d, %v", tt.a, tt.mul, tt.div, got, ok)
		}
	}
}

func TestGasLeftInvalidState(t *testing.T) {
	f := newFixture(t, 10)
	f.rt.gasCounter = 11
	if _, err := f.rt.GasLeft(); !isKind(err, errors.KindInvalidGasState) {
		t.Errorf("expected invalid gas state, got %v", err)
	}
}

func TestStorageWriteSetCostAndBuffering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1_000_000)
	copy(f.mem[0:], word(1))
	copy(f.mem[32:], word(9))

	if err := f.rt.storageWrite(ctx, 0, 32); err != nil {
		t.Fatalf("storageWrite: %v", err)
	}
	want := f.rt.sched.SstoreSetGas * 8 / 3
	if f.rt.GasUsed() != want {
		t.Errorf("GasUsed = %d, want %d", f.rt.GasUsed(), want)
	}

	key := types.BytesToH256(word(1))
	stored, _ := f.ledger.StorageAt(ctx, f.contract, key)
	if stored != (types.H256{}) {
		t.Error("write reached the provider before flush")
	}

	if err := f.rt.storageRead(ctx, 0, 64); err != nil {
		t.Fatalf("storageRead: %v", err)
	}
	if f.mem[64+31] != 9 {
		t.Error("read did not observe the pending write")
	}

	if err := f.state.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	stored, _ = f.ledger.StorageAt(ctx, f.contract, key)
	if stored != types.BytesToH256(word(9)) {
		t.Errorf("stored = %x after flush", stored)
	}
}

func TestStorageWriteResetAndRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1_000_000)
	key := types.BytesToH256(word(1))
	if err := f.ledger.SetStorage(ctx, f.contract, key, types.BytesToH256(word(5))); err != nil {
		t.Fatal(err)
	}
	copy(f.mem[0:], word(1))
	// value at 32 stays zero

	if err := f.rt.storageWrite(ctx, 0, 32); err != nil {
		t.Fatal(err)
	}
	want := f.rt.sched.SstoreResetGas * 8 / 3
	if f.rt.GasUsed() != want {
		t.Errorf("GasUsed = %d, want %d", f.rt.GasUsed(), want)
	}
	if f.rt.Refund() != f.rt.sched.SstoreRefundGas {
		t.Errorf("Refund = %d, want %d", f.rt.Refund(), f.rt.sched.SstoreRefundGas)
	}
}

func TestStorageWriteOutOfBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1_000_000)
	err := f.rt.storageWrite(ctx, 0, 1020)
	if !isKind(err, errors.KindMemoryAccess) {
		t.Fatalf("expected memory access, got %v", err)
	}
	if f.state.Dirty() {
		t.Error("failed write left pending state")
	}
	if f.rt.GasUsed() != 0 {
		t.Error("failed write charged gas")
	}
}

func TestStorageWriteOutOfGas(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	copy(f.mem[32:], word(1))
	if err := f.rt.storageWrite(ctx, 0, 32); !isKind(err, errors.KindGasLimit) {
		t.Fatalf("expected gas limit, got %v", err)
	}
	if f.state.Dirty() {
		t.Error("unpaid write left pending state")
	}
}

func TestRetCapturesPayload(t *testing.T) {
	f := newFixture(t, 1000)
	copy(f.mem[10:], "hello")
	err := f.rt.ret(10, 5)
	if err != ErrReturn {
		t.Fatalf("ret = %v, want ErrReturn", err)
	}
	if string(f.rt.Result()) != "hello" {
		t.Errorf("Result = %q", f.rt.Result())
	}
}

func TestFetchInput(t *testing.T) {
	f := newFixture(t, 1000)
	if err := f.rt.fetchInput(100); err != nil {
		t.Fatal(err)
	}
	if string(f.mem[100:111]) != "input-bytes" {
		t.Errorf("memory = %q", f.mem[100:111])
	}
	if f.rt.GasUsed() != 11 {
		t.Errorf("GasUsed = %d, want 11", f.rt.GasUsed())
	}
}

func TestPanicPayload(t *testing.T) {
	f := newFixture(t, 1000)
	payload := EncodePanicPayload("boom", "lib.rs", 10, 5)
	copy(f.mem[0:], payload)

	err := f.rt.panic(0, uint32(len(payload)))
	if !isKind(err, errors.KindPanic) {
		t.Fatalf("expected panic, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom, lib.rs:10:5") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestDebugRejectsInvalidUTF8(t *testing.T) {
	f := newFixture(t, 1000)
	copy(f.mem[0:], []byte{0xff, 0xfe})
	if err := f.rt.debug(0, 2); !isKind(err, errors.KindBadUTF8) {
		t.Errorf("expected bad utf8, got %v", err)
	}
	copy(f.mem[0:], "ok")
	if err := f.rt.debug(0, 2); err != nil {
		t.Errorf("debug: %v", err)
	}
}

func TestElog(t *testing.T) {
	f := newFixture(t, 1_000_000)
	copy(f.mem[0:], word(1))
	copy(f.mem[32:], word(2))
	copy(f.mem[200:], "data")

	if err := f.rt.elog(0, 2, 200, 4); err != nil {
		t.Fatal(err)
	}
	s := f.rt.sched
	want := (s.LogGas + 2*s.LogTopicGas + 4*s.LogDataGas) * 8 / 3
	if f.rt.GasUsed() != want {
		t.Errorf("GasUsed = %d, want %d", f.rt.GasUsed(), want)
	}
	logs := f.rt.Logs()
	if len(logs) != 1 || len(logs[0].Topics) != 2 || string(logs[0].Data) != "data" {
		t.Fatalf("logs = %+v", logs)
	}
	if logs[0].Address != f.contract {
		t.Error("log address mismatch")
	}
}

func TestElogTooManyTopics(t *testing.T) {
	f := newFixture(t, 1_000_000)
	if err := f.rt.elog(0, 5, 0, 0); !isKind(err, errors.KindLog) {
		t.Errorf("expected log error, got %v", err)
	}
	if f.rt.GasUsed() != 0 {
		t.Error("rejected log charged gas")
	}
}

func TestReturnAddressAndValue(t *testing.T) {
	f := newFixture(t, 1000)
	if err := f.rt.returnAddress(0, f.rt.params.Sender); err != nil {
		t.Fatal(err)
	}
	if types.BytesToAddress(f.mem[0:20]) != f.rt.params.Sender {
		t.Error("sender not written")
	}
	if err := f.rt.returnU256(100, f.rt.params.Value); err != nil {
		t.Fatal(err)
	}
	if f.mem[131] != 7 {
		t.Error("value should be big-endian")
	}
	want := uint64(f.rt.sched.Wasm.StaticAddress + f.rt.sched.Wasm.StaticU256)
	if f.rt.GasUsed() != want {
		t.Errorf("GasUsed = %d, want %d", f.rt.GasUsed(), want)
	}
}

func TestBlockQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1_000_000)

	if err := f.rt.blockHash(ctx, 0, 0); err != nil {
		t.Fatal(err)
	}
	genesis, _ := f.ledger.BlockHash(ctx, 0)
	if types.BytesToH256(f.mem[0:32]) != genesis {
		t.Error("blockhash mismatch")
	}
	if n, err := f.rt.blockNumber(ctx); err != nil || n != 0 {
		t.Errorf("blockNumber = %d, %v", n, err)
	}
	if err := f.rt.coinbase(ctx, 64); err != nil {
		t.Fatal(err)
	}
	author, _ := f.ledger.BlockAuthor(ctx)
	if types.BytesToAddress(f.mem[64:84]) != author {
		t.Error("coinbase mismatch")
	}
}

func TestUnsupportedEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000_000)
	copy(f.mem[0:], f.rt.params.Sender[:])

	status, err := f.rt.ccall(ctx, 1000, 0, 100, 200, 0, 300, 0)
	if !isKind(err, errors.KindPanic) || !strings.Contains(err.Error(), "not completed") {
		t.Fatalf("ccall = %d, %v", status, err)
	}
	if f.rt.GasUsed() == 0 {
		t.Error("ccall should be charged before the effect is attempted")
	}

	if _, err := f.rt.create(ctx, 100, 200, 4, 300); !isKind(err, errors.KindPanic) {
		t.Errorf("create: %v", err)
	}
	if err := f.rt.suicide(ctx, 0); !isKind(err, errors.KindPanic) {
		t.Errorf("suicide: %v", err)
	}
}

func TestCallBalanceCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000_000)
	f.rt.params.Address = ledger.AddressFromAlias("empty")
	copy(f.mem[100:], word(1))

	status, err := f.rt.ccall(ctx, 1000, 0, 100, 200, 0, 300, 0)
	if err != nil {
		t.Fatal(err)
	}
	if status != -1 {
		t.Errorf("status = %d, want -1", status)
	}
	if f.rt.GasUsed() != 0 {
		t.Error("rejected call charged gas")
	}
}

type recordingEffects struct {
	calls []CallRequest
}

func (e *recordingEffects) Call(_ context.Context, req CallRequest) (CallOutcome, error) {
	e.calls = append(e.calls, req)
	return CallOutcome{Applied: true, GasLeft: 300, Data: []byte("abcdef")}, nil
}

func (e *recordingEffects) Create(context.Context, CreateRequest) (CreateOutcome, error) {
	return CreateOutcome{Applied: true, Address: types.Address{1}}, nil
}

func (e *recordingEffects) Suicide(context.Context, types.Address, types.Address) (bool, error) {
	return true, nil
}

func TestCallWithEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000_000)
	eff := &recordingEffects{}
	f.rt.SetEffects(eff)
	copy(f.mem[200:], "in")

	status, err := f.rt.ccall(ctx, 600, 0, 100, 200, 2, 300, 4)
	if err != nil || status != 0 {
		t.Fatalf("ccall = %d, %v", status, err)
	}
	if len(eff.calls) != 1 || string(eff.calls[0].Input) != "in" {
		t.Fatalf("calls = %+v", eff.calls)
	}
	if string(f.mem[300:304]) != "abcd" {
		t.Errorf("result = %q", f.mem[300:304])
	}
	// call cost plus 600 forwarded minus 300 returned, all scaled by 8/3
	want := f.rt.sched.CallGas*8/3 + 1600 - 800
	if f.rt.GasUsed() != want {
		t.Errorf("GasUsed = %d, want %d", f.rt.GasUsed(), want)
	}

	if err := f.rt.suicide(ctx, 0); err != ErrSuicide {
		t.Errorf("suicide = %v", err)
	}
}

func TestInvokeUnknownIndex(t *testing.T) {
	f := newFixture(t, 1000)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !isKind(err, errors.KindInvalidHostIndex) {
			t.Errorf("recovered %v", r)
		}
	}()
	f.rt.Invoke(context.Background(), 999, make([]uint64, 1))
}

func TestInvokeGasAndInputLength(t *testing.T) {
	f := newFixture(t, 1000)
	stack := []uint64{42}
	f.rt.Invoke(context.Background(), GasFunc, stack)
	if f.rt.GasUsed() != 42 {
		t.Errorf("GasUsed = %d", f.rt.GasUsed())
	}
	f.rt.Invoke(context.Background(), InputLengthFunc, stack)
	if stack[0] != 11 {
		t.Errorf("input_length = %d", stack[0])
	}
}
