package vm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/native"
	"github.com/govm-net/helloworld/repository"
	"github.com/govm-net/helloworld/wasi"
)

// contractRuntime executes the functions of one kind of module
type contractRuntime interface {
	// init runs the initializer of contract and returns the encoded root state
	init(ctx context.Context, mod *repository.Module, contract string, ic core.InitContext, sb core.StateBuilder) ([]byte, error)
	// receive runs an entrypoint and returns the serialized return value
	receive(ctx context.Context, mod *repository.Module, contract, entrypoint string, rc core.ReceiveContext, h core.Host) ([]byte, error)
}

// nativeRuntime calls Go contracts from a native.Registry
type nativeRuntime struct {
	registry *native.Registry
}

func (r *nativeRuntime) init(ctx context.Context, mod *repository.Module, contract string, ic core.InitContext, sb core.StateBuilder) (state []byte, err error) {
	c, err := r.registry.Lookup(contract)
	if err != nil {
		return nil, err
	}
	defer recoverContract(core.InitName(contract), &err)
	return c.Init(ic, sb)
}

func (r *nativeRuntime) receive(ctx context.Context, mod *repository.Module, contract, entrypoint string, rc core.ReceiveContext, h core.Host) (ret []byte, err error) {
	c, err := r.registry.Lookup(contract)
	if err != nil {
		return nil, err
	}
	fn, err := c.Entrypoint(entrypoint)
	if err != nil {
		return nil, err
	}
	defer recoverContract(core.ReceiveName(contract, entrypoint), &err)
	return fn(rc, h)
}

// recoverContract turns a panicking native contract into an error
func recoverContract(name string, err *error) {
	if r := recover(); r != nil {
		slog.Error("contract panicked", "function", name, "panic", r)
		*err = fmt.Errorf("%s panicked: %v", name, r)
	}
}

// wasmRuntime calls WebAssembly modules through wazero. Modules get no host
// imports, so contexts and state are not visible to them; a wasm instance
// always starts with an empty state.
type wasmRuntime struct {
	vm *wasi.WazeroVM
}

func (r *wasmRuntime) init(ctx context.Context, mod *repository.Module, contract string, ic core.InitContext, sb core.StateBuilder) ([]byte, error) {
	if err := r.vm.Init(ctx, mod.Ref, mod.Code, contract); err != nil {
		return nil, err
	}
	return []byte{}, nil
}

func (r *wasmRuntime) receive(ctx context.Context, mod *repository.Module, contract, entrypoint string, rc core.ReceiveContext, h core.Host) ([]byte, error) {
	return r.vm.Receive(ctx, mod.Ref, mod.Code, contract, entrypoint)
}
