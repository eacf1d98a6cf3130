package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/runtime"
	"github.com/wippyai/wasm-executor/wasm"
)

var i32s = []byte{wasm.ValI32, wasm.ValI32}

// pongModule returns "pong" through ret.
func pongModule() []byte {
	return replyModule("pong")
}

// replyModule returns reply through ret.
func replyModule(reply string) []byte {
	b := wasm.NewBuilder()
	ret := b.ImportFunc("env", "ret", i32s, nil)
	b.Memory(wasm.Limits{Min: 1})
	fn := b.Func(nil, nil, nil, wasm.NewAsm().I32Const(0).I32Const(int32(len(reply))).Call(ret))
	b.ExportFunc("call", fn)
	b.Data(0, []byte(reply))
	return b.Build()
}

// spinModule loops forever.
func spinModule() []byte {
	b := wasm.NewBuilder()
	b.ImportFunc("env", "ret", i32s, nil)
	b.Memory(wasm.Limits{Min: 1})
	fn := b.Func(nil, nil, nil, wasm.NewAsm().Loop().Br(0).End())
	b.ExportFunc("call", fn)
	return b.Build()
}

type recordingHost struct {
	mem    *WazeroMemory
	calls  []int
	gas    uint64
	result []byte
}

func (h *recordingHost) Invoke(_ context.Context, index int, stack []uint64) {
	h.calls = append(h.calls, index)
	switch index {
	case runtime.GasFunc:
		h.gas += uint64(uint32(stack[0]))
	case runtime.RetFunc:
		data, err := h.mem.Read(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			panic(err)
		}
		h.result = data
		panic(runtime.ErrReturn)
	}
}

func newTestEngine(t *testing.T) *WazeroEngine {
	t.Helper()
	ctx := context.Background()
	e, err := NewWazeroEngineWithConfig(ctx, &Config{CacheSize: 2})
	if err != nil {
		t.Fatalf("NewWazeroEngineWithConfig: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	return e
}

func TestInstanceCallRoutesToHost(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	mod, err := e.LoadModule(ctx, pongModule())
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	host := &recordingHost{mem: inst.Memory()}
	err = inst.Call(WithHost(ctx, host), "call")
	if !errors.Is(err, runtime.ErrReturn) {
		t.Fatalf("Call = %v, want ErrReturn", err)
	}
	if string(host.result) != "pong" {
		t.Errorf("result = %q", host.result)
	}
	if host.gas == 0 {
		t.Error("instrumented code should charge gas before ret")
	}
	if host.calls[0] != runtime.GasFunc {
		t.Errorf("first host call = %d, want gas", host.calls[0])
	}
}

func TestCallWithoutHostFails(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	mod, err := e.LoadModule(ctx, pongModule())
	if err != nil {
		t.Fatal(err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	err = inst.Call(ctx, "call")
	if !errors.Is(err, &errors.Error{Kind: errors.KindNotFound}) {
		t.Errorf("expected missing host error, got %v", err)
	}
}

func TestCallMissingExport(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	mod, _ := e.LoadModule(ctx, pongModule())
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)
	if err := inst.Call(ctx, "nope"); !errors.Is(err, &errors.Error{Kind: errors.KindNotFound}) {
		t.Errorf("got %v", err)
	}
}

func TestLoadModuleCaches(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	a, err := e.LoadModule(ctx, pongModule())
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.LoadModule(ctx, pongModule())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("identical code should hit the cache")
	}
	if e.CachedModules() != 1 {
		t.Errorf("CachedModules = %d", e.CachedModules())
	}

	if _, err := e.LoadModule(ctx, spinModule()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.LoadModule(ctx, []byte("\x00asm\x01\x00\x00\x00junk")); err == nil {
		t.Error("expected parse failure")
	}
	if e.CachedModules() != 2 {
		t.Errorf("CachedModules = %d, failed loads must not be cached", e.CachedModules())
	}
}

func TestLoadModuleRejectsGarbage(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadModule(context.Background(), []byte("not wasm"))
	if !errors.Is(err, &errors.Error{Kind: errors.KindParse}) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestCallHonorsDeadline(t *testing.T) {
	e := newTestEngine(t)
	mod, err := e.LoadModule(context.Background(), spinModule())
	if err != nil {
		t.Fatal(err)
	}
	inst, err := mod.Instantiate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	host := &recordingHost{mem: inst.Memory()}
	if err := inst.Call(WithHost(ctx, host), "call"); err == nil {
		t.Fatal("spinning contract should be stopped by the deadline")
	}
}

func TestMemoryBounds(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	mod, _ := e.LoadModule(ctx, pongModule())
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	mem := inst.Memory()
	if mem.Size() != wasm.PageSize {
		t.Errorf("Size = %d", mem.Size())
	}
	data, err := mem.Read(0, 4)
	if err != nil || string(data) != "pong" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	data[0] = 'x'
	again, _ := mem.Read(0, 4)
	if string(again) != "pong" {
		t.Error("Read should return a copy")
	}
	if _, err := mem.Read(wasm.PageSize-2, 4); err == nil {
		t.Error("expected out of bounds read")
	}
	if err := mem.WriteU32(wasm.PageSize, 1); err == nil {
		t.Error("expected out of bounds write")
	}
	if err := mem.WriteU32(8, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	if v, _ := mem.ReadU32(8); v != 0xdeadbeef {
		t.Errorf("ReadU32 = %x", v)
	}
}

func runReply(ctx context.Context, e *WazeroEngine, code []byte) (string, error) {
	mod, err := e.LoadModule(ctx, code)
	if err != nil {
		return "", err
	}
	defer mod.Release()
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return "", err
	}
	defer inst.Close(ctx)
	host := &recordingHost{mem: inst.Memory()}
	if err := inst.Call(WithHost(ctx, host), "call"); !errors.Is(err, runtime.ErrReturn) {
		return "", fmt.Errorf("call: %v", err)
	}
	return string(host.result), nil
}

func TestEvictedModuleStaysUsableWhileReferenced(t *testing.T) {
	ctx := context.Background()
	e, err := NewWazeroEngineWithConfig(ctx, &Config{CacheSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close(ctx)

	held, err := e.LoadModule(ctx, replyModule("first"))
	if err != nil {
		t.Fatal(err)
	}
	other, err := e.LoadModule(ctx, replyModule("second"))
	if err != nil {
		t.Fatal(err)
	}
	other.Release()

	inst, err := held.Instantiate(ctx)
	if err != nil {
		t.Fatalf("evicted module should instantiate while referenced: %v", err)
	}
	inst.Close(ctx)
	held.Release()
	held.Release()
}

func TestConcurrentLoadWithEviction(t *testing.T) {
	ctx := context.Background()
	e, err := NewWazeroEngineWithConfig(ctx, &Config{CacheSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close(ctx)

	replies := []string{"a", "bb", "ccc", "dddd"}
	codes := make([][]byte, len(replies))
	for i, r := range replies {
		codes[i] = replyModule(r)
	}

	const workers, rounds = 8, 100
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				k := (w + i) % len(codes)
				got, err := runReply(ctx, e, codes[k])
				if err != nil {
					errs <- fmt.Errorf("worker %d round %d: %w", w, i, err)
					return
				}
				if got != replies[k] {
					errs <- fmt.Errorf("worker %d round %d: got %q, want %q", w, i, got, replies[k])
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
