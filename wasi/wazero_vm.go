// Package wasi runs contract modules compiled to WebAssembly on wazero.
package wasi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/govm-net/helloworld/core"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const (
	// DefaultMaxMemoryPages limits a module to 1MiB of linear memory
	DefaultMaxMemoryPages = 16
	// DefaultCacheSize is the number of compiled modules kept in memory
	DefaultCacheSize = 64
	// MaxMemoryPages is the largest memory limit wasm allows (4GiB)
	MaxMemoryPages = 65536

	memoryExport = "memory"
)

// Config configures the wazero runtime
type Config struct {
	MaxMemoryPages uint32
	CacheSize      int
}

// WazeroVM executes contract entry points exported by WebAssembly modules.
// Each call runs in a fresh anonymous module instance; compiled code is
// shared through an LRU cache keyed by module reference.
type WazeroVM struct {
	runtime wazero.Runtime
	cache   *lru.Cache[core.Hash, wazero.CompiledModule]

	// guards compile and instantiate so an evicted module is never
	// instantiated after it has been closed
	mu sync.Mutex
}

// NewWazeroVM creates a wazero runtime. Zero config values fall back to the
// package defaults.
func NewWazeroVM(ctx context.Context, config Config) (*WazeroVM, error) {
	if config.MaxMemoryPages == 0 {
		config.MaxMemoryPages = DefaultMaxMemoryPages
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultCacheSize
	}
	if config.MaxMemoryPages > MaxMemoryPages {
		return nil, fmt.Errorf("memory limit %d pages exceeds %d: %w", config.MaxMemoryPages, MaxMemoryPages, core.ErrInvalidArgument)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(config.MaxMemoryPages).
		WithCloseOnContextDone(true))

	cache, err := lru.NewWithEvict(config.CacheSize, func(ref core.Hash, compiled wazero.CompiledModule) {
		slog.Debug("evicting compiled module", "ref", ref)
		if err := compiled.Close(context.Background()); err != nil {
			slog.Warn("failed to close compiled module", "ref", ref, "error", err)
		}
	})
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to create module cache: %w", err)
	}

	return &WazeroVM{runtime: runtime, cache: cache}, nil
}

// Inspect compiles a module and checks it follows the contract calling
// convention. It returns the sorted names of all exports.
func (vm *WazeroVM) Inspect(ctx context.Context, ref core.Hash, code []byte) ([]string, error) {
	vm.mu.Lock()
	compiled, err := vm.compile(ctx, ref, code)
	vm.mu.Unlock()
	if err != nil {
		return nil, err
	}

	exports, err := checkExports(compiled)
	if err != nil {
		vm.mu.Lock()
		vm.cache.Remove(ref)
		vm.mu.Unlock()
		return nil, err
	}
	return exports, nil
}

// Init runs init_<contract>. A negative result is returned as *core.Reject.
func (vm *WazeroVM) Init(ctx context.Context, ref core.Hash, code []byte, contract string) error {
	mod, err := vm.instantiate(ctx, ref, code)
	if err != nil {
		return err
	}
	defer mod.Close(ctx)

	res, err := vm.call(ctx, mod, core.InitName(contract))
	if err != nil {
		return err
	}
	if rc := api.DecodeI32(res); rc < 0 {
		return &core.Reject{Code: rc}
	}
	return nil
}

// Receive runs <contract>.<entrypoint> and returns a copy of the serialized
// return value the entry point left in memory.
func (vm *WazeroVM) Receive(ctx context.Context, ref core.Hash, code []byte, contract, entrypoint string) ([]byte, error) {
	mod, err := vm.instantiate(ctx, ref, code)
	if err != nil {
		return nil, err
	}
	defer mod.Close(ctx)

	name := core.ReceiveName(contract, entrypoint)
	res, err := vm.call(ctx, mod, name)
	if err != nil {
		return nil, err
	}
	packed := int64(res)
	if packed < 0 {
		return nil, &core.Reject{Code: int32(packed)}
	}

	mem := mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("%s: module has no memory", name)
	}
	ptr, size := uint32(packed>>32), uint32(packed)
	data, ok := mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("%s: return value [%d, %d) is out of memory bounds", name, ptr, uint64(ptr)+uint64(size))
	}
	// the view is only valid until the module is closed
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Close releases the runtime and all compiled modules
func (vm *WazeroVM) Close(ctx context.Context) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.cache.Purge()
	return vm.runtime.Close(ctx)
}

func (vm *WazeroVM) call(ctx context.Context, mod api.Module, name string) (uint64, error) {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return 0, fmt.Errorf("%s: %w", name, core.ErrEntrypointNotFound)
	}
	res, err := fn.Call(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to call %s: %w", name, err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("%s returned %d values, expected 1", name, len(res))
	}
	return res[0], nil
}

func (vm *WazeroVM) instantiate(ctx context.Context, ref core.Hash, code []byte) (api.Module, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	compiled, err := vm.compile(ctx, ref, code)
	if err != nil {
		return nil, err
	}
	// anonymous modules may be instantiated any number of times
	mod, err := vm.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module %s: %w", ref, err)
	}
	return mod, nil
}

// compile must be called with mu held
func (vm *WazeroVM) compile(ctx context.Context, ref core.Hash, code []byte) (wazero.CompiledModule, error) {
	if compiled, ok := vm.cache.Get(ref); ok {
		return compiled, nil
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("module %s has no code: %w", ref, core.ErrInvalidArgument)
	}

	compiled, err := vm.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module %s: %w", ref, errors.Join(core.ErrInvalidArgument, err))
	}
	vm.cache.Add(ref, compiled)
	slog.Debug("module compiled", "ref", ref, "size", len(code))
	return compiled, nil
}

func checkExports(compiled wazero.CompiledModule) ([]string, error) {
	if imports := compiled.ImportedFunctions(); len(imports) > 0 {
		module, name, _ := imports[0].Import()
		return nil, fmt.Errorf("module imports %s.%s, contract modules must not import functions: %w", module, name, core.ErrInvalidArgument)
	}
	if imports := compiled.ImportedMemories(); len(imports) > 0 {
		return nil, fmt.Errorf("contract modules must not import memory: %w", core.ErrInvalidArgument)
	}

	var exports []string
	hasReceive := false
	for name, def := range compiled.ExportedFunctions() {
		if _, ok := core.ParseInitName(name); ok {
			if err := checkSignature(name, def, api.ValueTypeI32); err != nil {
				return nil, err
			}
		} else if _, _, ok := core.ParseReceiveName(name); ok {
			if err := checkSignature(name, def, api.ValueTypeI64); err != nil {
				return nil, err
			}
			hasReceive = true
		}
		exports = append(exports, name)
	}

	_, hasMemory := compiled.ExportedMemories()[memoryExport]
	if hasMemory {
		exports = append(exports, memoryExport)
	} else if hasReceive {
		return nil, fmt.Errorf("module has entrypoints but does not export memory: %w", core.ErrInvalidArgument)
	}

	sort.Strings(exports)
	return exports, nil
}

func checkSignature(name string, def api.FunctionDefinition, result api.ValueType) error {
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 0 || len(results) != 1 || results[0] != result {
		return fmt.Errorf("export %s has signature %v -> %v, expected () -> %s: %w",
			name, valueTypeNames(params), valueTypeNames(results), api.ValueTypeName(result), core.ErrInvalidArgument)
	}
	return nil
}

func valueTypeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return names
}
