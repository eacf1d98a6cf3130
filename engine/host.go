package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/loader"
	"github.com/wippyai/wasm-executor/runtime"
)

// Host services env imports for one running instance.
type Host interface {
	Invoke(ctx context.Context, index int, stack []uint64)
}

type hostKey struct{}

// WithHost binds h to ctx. Every call into an instance must carry a host.
func WithHost(ctx context.Context, h Host) context.Context {
	return context.WithValue(ctx, hostKey{}, h)
}

// HostFrom returns the host bound to ctx, if any.
func HostFrom(ctx context.Context) (Host, bool) {
	h, ok := ctx.Value(hostKey{}).(Host)
	return h, ok
}

// instantiateEnv registers the env module. Compiled host functions are shared
// across instances, so the host is resolved from the call context.
func instantiateEnv(ctx context.Context, r wazero.Runtime) error {
	b := r.NewHostModuleBuilder(loader.EnvModule)
	for _, hf := range runtime.HostFuncs {
		b.NewFunctionBuilder().
			WithGoModuleFunction(dispatch(hf.Index), hf.Params, hf.Results).
			WithName(hf.Name).
			Export(hf.Name)
	}
	if _, err := b.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate env module")
	}
	return nil
}

func dispatch(index int) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		h, ok := HostFrom(ctx)
		if !ok {
			panic(errors.New(errors.PhaseHost, errors.KindNotFound).
				Detail("no host bound for env function %d", index).
				Build())
		}
		h.Invoke(ctx, index, stack)
	}
}
