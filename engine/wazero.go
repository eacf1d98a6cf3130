package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/loader"
	"github.com/wippyai/wasm-executor/schedule"
	"github.com/wippyai/wasm-executor/types"
)

// DefaultCacheSize is the number of compiled modules kept when Config leaves it unset.
const DefaultCacheSize = 64

// WazeroEngine compiles instrumented contracts and instantiates them against
// the shared env host module.
type WazeroEngine struct {
	runtime wazero.Runtime
	sched   *schedule.Schedule
	cache   *lru.Cache
	mu      sync.Mutex
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages caps every instance's memory in 64KiB pages.
	// 0 uses the schedule's MaxMemoryPages.
	MemoryLimitPages uint32

	// CacheSize bounds the compiled module cache. 0 means DefaultCacheSize.
	CacheSize int

	// Schedule drives instrumentation. nil means schedule.Default().
	Schedule *schedule.Schedule
}

// NewWazeroEngine creates a new engine with the default schedule.
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	sched := cfg.Schedule
	if sched == nil {
		sched = schedule.Default()
	}
	pages := cfg.MemoryLimitPages
	if pages == 0 {
		pages = sched.Wasm.MaxMemoryPages
	}
	if pages != sched.Wasm.MaxMemoryPages {
		sched = sched.WithMaxMemoryPages(pages)
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	runtimeCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(pages)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if err := instantiateEnv(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	cache, err := lru.NewWithEvict(size, func(_, value interface{}) {
		value.(*WazeroModule).evict()
	})
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("module cache: %w", err)
	}

	return &WazeroEngine{runtime: runtime, sched: sched, cache: cache}, nil
}

// Schedule returns the schedule used for instrumentation.
func (e *WazeroEngine) Schedule() *schedule.Schedule {
	return e.sched
}

// LoadModule instruments and compiles code. Compiled modules are cached by
// the hash of the original bytecode. The returned module holds a reference
// that keeps it compiled after eviction; callers must Release it.
func (e *WazeroEngine) LoadModule(ctx context.Context, code []byte) (*WazeroModule, error) {
	hash := crypto.Keccak256Hash(code)

	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.cache.Get(hash); ok {
		m := v.(*WazeroModule)
		m.refs++
		return m, nil
	}

	loaded, err := loader.Load(code, e.sched)
	if err != nil {
		return nil, err
	}
	compiled, err := e.runtime.CompileModule(ctx, loaded.Code)
	if err != nil {
		return nil, errors.Wasm("compile failed", err)
	}

	m := &WazeroModule{engine: e, loaded: loaded, compiled: compiled, refs: 1}
	e.cache.Add(hash, m)
	debugf("compiled module %s (%d bytes instrumented)", hash, len(loaded.Code))
	return m, nil
}

// CachedModules returns the number of compiled modules held by the cache.
func (e *WazeroEngine) CachedModules() int {
	return e.cache.Len()
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.cache.Purge()
	e.mu.Unlock()
	return e.runtime.Close(ctx)
}

// WazeroModule is a compiled, instrumented contract. It stays compiled while
// it is cached or referenced by a LoadModule caller.
type WazeroModule struct {
	engine   *WazeroEngine
	loaded   *loader.Module
	compiled wazero.CompiledModule

	// guarded by engine.mu
	refs    int
	evicted bool
}

// evict runs under engine.mu from the cache's eviction callback.
func (m *WazeroModule) evict() {
	m.evicted = true
	m.closeIfUnused()
}

func (m *WazeroModule) closeIfUnused() {
	if !m.evicted || m.refs > 0 {
		return
	}
	if err := m.compiled.Close(context.Background()); err != nil {
		Logger().Warn("failed to release evicted module", zap.Error(err))
	}
}

// Release drops the reference taken by LoadModule. Instances already created
// stay usable.
func (m *WazeroModule) Release() {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	if m.refs == 0 {
		return
	}
	m.refs--
	m.closeIfUnused()
}

// Hash returns the keccak256 hash of the original bytecode.
func (m *WazeroModule) Hash() types.H256 { return m.loaded.Hash }

// InitialPages returns the number of pages the module's memory starts with.
func (m *WazeroModule) InitialPages() uint32 { return m.loaded.InitialPages }

// HasStart reports whether the module declared a start function.
func (m *WazeroModule) HasStart() bool { return m.loaded.HasStart }

// Instantiate creates a fresh instance. The start function is not run; call
// StartExport explicitly once a host is bound to ctx.
func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	modConfig := wazero.NewModuleConfig().
		WithName(""). // anonymous for parallel instantiation
		WithStartFunctions()

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	mem := instance.ExportedMemory(loader.MemoryExport)
	if mem == nil {
		instance.Close(ctx)
		return nil, errors.Instantiation(fmt.Errorf("module does not export %q", loader.MemoryExport))
	}

	return &WazeroInstance{
		module:   m,
		instance: instance,
		memory:   &WazeroMemory{mem: mem},
	}, nil
}

// WazeroInstance is a running contract instance.
type WazeroInstance struct {
	module   *WazeroModule
	instance api.Module
	memory   *WazeroMemory
}

// Memory returns the instance's linear memory.
func (i *WazeroInstance) Memory() *WazeroMemory {
	return i.memory
}

// MemorySize returns the size of linear memory in bytes.
func (i *WazeroInstance) MemorySize() uint32 {
	return i.memory.Size()
}

// Call invokes a no-argument export. ctx must carry the host via WithHost.
// Errors are returned as produced by wazero so callers can classify traps and
// host aborts.
func (i *WazeroInstance) Call(ctx context.Context, name string) error {
	fn := i.instance.ExportedFunction(name)
	if fn == nil {
		return errors.NotFound(errors.PhaseExecute, "export", name)
	}
	_, err := fn.Call(ctx)
	return err
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	if i.instance == nil {
		return nil
	}
	err := i.instance.Close(ctx)
	i.instance = nil
	i.memory = nil
	return err
}
