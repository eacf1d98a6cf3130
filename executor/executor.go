package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-executor/engine"
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/loader"
	"github.com/wippyai/wasm-executor/provider"
	"github.com/wippyai/wasm-executor/runtime"
	"github.com/wippyai/wasm-executor/schedule"
	"github.com/wippyai/wasm-executor/state"
	"github.com/wippyai/wasm-executor/types"
)

// Config holds configuration for executor creation
type Config struct {
	// Schedule is the gas table. nil means schedule.Default().
	Schedule *schedule.Schedule

	// MaxMemoryPages overrides the schedule's memory cap when non-zero.
	MaxMemoryPages uint32

	// ModuleCacheSize bounds the compiled module cache.
	ModuleCacheSize int

	// Effects applies nested calls, creations and self-destructs.
	// nil reports them as unsupported.
	Effects runtime.Effects
}

// Executor applies transactions. It is safe for concurrent use; each Execute
// gets its own runtime, state cache and instance.
type Executor struct {
	engine  *engine.WazeroEngine
	sched   *schedule.Schedule
	effects runtime.Effects
}

// New creates an executor backed by a fresh engine.
func New(ctx context.Context, cfg *Config) (*Executor, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	sched := cfg.Schedule
	if sched == nil {
		sched = schedule.Default()
	}
	if cfg.MaxMemoryPages != 0 {
		sched = sched.WithMaxMemoryPages(cfg.MaxMemoryPages)
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{
		MemoryLimitPages: sched.Wasm.MaxMemoryPages,
		CacheSize:        cfg.ModuleCacheSize,
		Schedule:         sched,
	})
	if err != nil {
		return nil, err
	}

	effects := cfg.Effects
	if effects == nil {
		effects = runtime.Unimplemented{}
	}
	return &Executor{engine: eng, sched: sched, effects: effects}, nil
}

// Close releases the engine and every compiled module.
func (x *Executor) Close(ctx context.Context) error {
	return x.engine.Close(ctx)
}

// Schedule returns the gas table in use.
func (x *Executor) Schedule() *schedule.Schedule {
	return x.sched
}

// Params resolves the invocation parameters of tx. A Call reads the target's
// code from p; a Create derives the new contract's address.
func Params(ctx context.Context, tx *types.Transaction, p provider.Provider) (*types.ActionParams, error) {
	params := &types.ActionParams{
		Sender:   tx.Sender,
		Origin:   tx.Sender,
		Gas:      orZero(tx.Gas),
		GasPrice: orZero(tx.GasPrice),
		Value:    orZero(tx.Value),
		Args:     tx.Args,
	}

	switch a := tx.Action.(type) {
	case types.Create:
		addr := types.ContractAddress(tx.Sender, a.Code, a.Salt)
		params.CodeAddress = addr
		params.Address = addr
		params.ActionType = types.ActionCreate
		params.Code = a.Code
	case types.Call:
		acc, err := p.Account(ctx, a.Address)
		if err != nil {
			if errors.Is(err, errors.ErrProvider) {
				return nil, err
			}
			return nil, errors.Provider("account", err)
		}
		params.CodeAddress = a.Address
		params.Address = a.Address
		params.ActionType = types.ActionCall
		params.Code = acc.Code
	default:
		return nil, errors.InvalidInput(errors.PhaseExecute, fmt.Sprintf("unknown action %T", tx.Action))
	}
	return params, nil
}

func orZero(v *types.U256) *types.U256 {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// internalGas scales transaction gas into the engine's units.
func internalGas(gas *types.U256, w *schedule.Wasm) (uint64, error) {
	scaled, overflow := new(uint256.Int).MulDivOverflow(gas,
		uint256.NewInt(uint64(w.OpcodesDiv)), uint256.NewInt(uint64(w.OpcodesMul)))
	if overflow || !scaled.IsUint64() {
		return 0, errors.Wasm("cannot run contracts with gas (wasm adjusted) >= 2^64", nil)
	}
	return scaled.Uint64(), nil
}

// Execute applies tx against p in a single pass. Storage writes and deployed
// code reach p only when the contract completes successfully.
func (x *Executor) Execute(ctx context.Context, tx *types.Transaction, p provider.Provider) (*types.ResultData, error) {
	start := time.Now()

	params, err := Params(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	mod, err := x.engine.LoadModule(ctx, params.Code)
	if err != nil {
		return nil, err
	}
	defer mod.Release()

	limit, err := internalGas(params.Gas, &x.sched.Wasm)
	if err != nil {
		return nil, err
	}

	st := state.New(p)
	rt := runtime.New(params, x.sched, st, limit)
	rt.SetEffects(x.effects)

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	defer inst.Close(context.Background())
	rt.SetMemory(inst.Memory())

	Logger().Debug("contract requested initial memory",
		zap.Uint32("pages", mod.InitialPages()),
		zap.Stringer("address", params.Address))
	if err := rt.Charge(uint64(mod.InitialPages()) * uint64(x.sched.Wasm.InitialMem)); err != nil {
		st.Discard()
		return nil, err
	}

	callCtx := engine.WithHost(ctx, rt)
	if mod.HasStart() {
		if err := inst.Call(callCtx, loader.StartExport); err != nil {
			st.Discard()
			return nil, classify(ctx, err)
		}
	}

	if err := finished(ctx, inst.Call(callCtx, loader.CallExport)); err != nil {
		st.Discard()
		Logger().Debug("contract failed",
			zap.Stringer("address", params.Address),
			zap.Uint64("gas_used", rt.GasUsed()),
			zap.Error(err))
		return nil, err
	}

	result := rt.Result()
	if params.ActionType == types.ActionCreate && len(result) > 0 {
		st.InitCode(params.Address, result)
	}
	if err := st.Flush(ctx); err != nil {
		return nil, err
	}

	left, err := rt.ExternalGasLeft()
	if err != nil {
		return nil, err
	}

	Logger().Debug("contract executed",
		zap.Stringer("action", params.ActionType),
		zap.Stringer("address", params.Address),
		zap.Uint64("gas_left", left),
		zap.Int("result_len", len(result)),
		zap.Int("logs", len(rt.Logs())),
		zap.Duration("elapsed", time.Since(start)))

	return &types.ResultData{
		GasLeft:  uint256.NewInt(left),
		Data:     result,
		Contract: params.Address,
		Logs:     rt.Logs(),
	}, nil
}

// finished maps the terminal condition of the call export. Returning from the
// export, ret and suicide all complete successfully.
func finished(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, runtime.ErrReturn) || errors.Is(err, runtime.ErrSuicide) {
		return nil
	}
	return classify(ctx, err)
}

// classify turns an engine failure into a typed error. Host errors keep their
// kind; traps and interruptions become Wasm errors carrying the trap.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wasm("execution interrupted", ctxErr)
	}
	if e, ok := errors.As(err); ok {
		return e
	}
	return errors.Wasm("trap", err)
}
