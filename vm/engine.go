// Package vm deploys contract modules and runs their initializers and
// entrypoints against a blockchain context.
package vm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/govm-net/helloworld/abi"
	"github.com/govm-net/helloworld/api"
	bccontext "github.com/govm-net/helloworld/context"
	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/native"
	"github.com/govm-net/helloworld/repository"
	"github.com/govm-net/helloworld/security"
	"github.com/govm-net/helloworld/types"
	"github.com/govm-net/helloworld/wasi"
	"github.com/prometheus/client_golang/prometheus"
)

// InitializedEvent is logged for every new instance
const InitializedEvent = "Initialized"

var _ api.VM = (*Engine)(nil)

// Engine is responsible for contract deployment and execution
type Engine struct {
	config   *Config
	wazero   *wasi.WazeroVM
	repo     *repository.Manager
	metrics  *Metrics
	limiter  *security.ResourceLimiter
	runtimes map[types.ModuleKind]contractRuntime
	natives  *native.Registry

	ctx types.BlockchainContext // Blockchain context

	// serializes nonce lookup and instance creation
	initMu sync.Mutex
}

// Config represents engine configuration
type Config struct {
	RepositoryDir    string         // Module repository directory
	ContextType      string         // Blockchain context type
	ContextParams    map[string]any // Blockchain context parameters
	GasLimit         int64          // Gas available to each call
	MaxCodeSize      int            // Maximum module size in bytes
	MaxParameterSize int            // Maximum parameter size in bytes
	MaxMemoryPages   uint32         // Linear memory limit of wasm modules
	CacheSize        int            // Number of compiled wasm modules kept
	MaxExecutionTime time.Duration  // Wall time limit of one call

	// Registerer receives the engine metrics. A fresh registry is used when nil.
	Registerer prometheus.Registerer
	// Natives overrides the native contract registry, native.Default() when nil.
	Natives *native.Registry
}

// NewEngine creates a new contract engine
func NewEngine(config *Config) (*Engine, error) {
	// Ensure configuration is valid
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	// 默认值写入副本，调用方的 config 可以重复使用
	c := *config
	config = &c
	applyDefaults(config)
	slog.Info("creating engine", "repository", config.RepositoryDir, "context", config.ContextType, "gas_limit", config.GasLimit)

	repo, err := repository.NewManager(config.RepositoryDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create module repository: %w", err)
	}

	metrics, err := NewMetrics(config.Registerer)
	if err != nil {
		return nil, err
	}

	wazero, err := wasi.NewWazeroVM(context.Background(), wasi.Config{
		MaxMemoryPages: config.MaxMemoryPages,
		CacheSize:      config.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create wazero runtime: %w", err)
	}

	bc, err := bccontext.Get(bccontext.ContextType(config.ContextType), config.ContextParams)
	if err != nil {
		wazero.Close(context.Background())
		return nil, fmt.Errorf("failed to get blockchain context: %w", err)
	}

	return &Engine{
		config:  config,
		wazero:  wazero,
		repo:    repo,
		metrics: metrics,
		limiter: security.NewResourceLimiter(config.MaxExecutionTime),
		runtimes: map[types.ModuleKind]contractRuntime{
			types.NativeModule: &nativeRuntime{registry: config.Natives},
			types.WasmModule:   &wasmRuntime{vm: wazero},
		},
		natives: config.Natives,
		ctx:     bc,
	}, nil
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}
	if config.RepositoryDir == "" {
		return fmt.Errorf("repository directory is empty")
	}
	if config.GasLimit < 0 {
		return fmt.Errorf("invalid gas limit: %d", config.GasLimit)
	}
	if config.MaxCodeSize < 0 {
		return fmt.Errorf("invalid max code size: %d", config.MaxCodeSize)
	}
	if config.MaxParameterSize < 0 {
		return fmt.Errorf("invalid max parameter size: %d", config.MaxParameterSize)
	}
	if config.MaxExecutionTime < 0 {
		return fmt.Errorf("invalid max execution time: %s", config.MaxExecutionTime)
	}
	if config.MaxMemoryPages > wasi.MaxMemoryPages {
		return fmt.Errorf("invalid max memory pages: %d exceeds %d", config.MaxMemoryPages, wasi.MaxMemoryPages)
	}
	return nil
}

func applyDefaults(config *Config) {
	defaults := api.DefaultContractConfig()
	if config.GasLimit == 0 {
		config.GasLimit = defaults.MaxGas
	}
	if config.MaxCodeSize == 0 {
		config.MaxCodeSize = defaults.MaxCodeSize
	}
	if config.MaxParameterSize == 0 {
		config.MaxParameterSize = defaults.MaxParameterSize
	}
	if config.MaxExecutionTime == 0 {
		config.MaxExecutionTime = defaults.MaxExecutionTime
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.NewRegistry()
	}
	if config.Natives == nil {
		config.Natives = native.Default()
	}
}

// GetContext returns the active blockchain context
func (e *Engine) GetContext() types.BlockchainContext {
	return e.ctx
}

// DeployModule validates a WebAssembly module and stores it under sha256(code)
func (e *Engine) DeployModule(ctx context.Context, code []byte) (ref core.Hash, err error) {
	defer func() { e.metrics.deployed(string(types.WasmModule), err) }()

	if len(code) == 0 {
		return core.ZeroHash, fmt.Errorf("module code cannot be empty: %w", core.ErrInvalidArgument)
	}
	if len(code) > e.config.MaxCodeSize {
		return core.ZeroHash, fmt.Errorf("module size %d exceeds %d: %w", len(code), e.config.MaxCodeSize, core.ErrInvalidArgument)
	}

	ref = core.GetHash(code)
	exports, err := e.wazero.Inspect(ctx, ref, code)
	if err != nil {
		return core.ZeroHash, fmt.Errorf("module validation failed: %w", err)
	}
	schema, err := abi.FromExports(exports)
	if err != nil {
		return core.ZeroHash, fmt.Errorf("failed to extract module schema: %w", err)
	}
	if err := e.register(ref, types.WasmModule, code, schema); err != nil {
		return core.ZeroHash, err
	}
	return ref, nil
}

// DeployNative stores a module for a contract compiled into the host
func (e *Engine) DeployNative(ctx context.Context, contract string) (ref core.Hash, err error) {
	defer func() { e.metrics.deployed(string(types.NativeModule), err) }()

	c, err := e.natives.Lookup(contract)
	if err != nil {
		return core.ZeroHash, err
	}
	ref = NativeModuleRef(contract)
	if err := e.register(ref, types.NativeModule, nil, abi.FromContract(c)); err != nil {
		return core.ZeroHash, err
	}
	return ref, nil
}

// NativeModuleRef is the module reference of a native contract
func NativeModuleRef(contract string) core.Hash {
	return core.GetHash([]byte("native:" + contract))
}

func (e *Engine) register(ref core.Hash, kind types.ModuleKind, code []byte, schema *abi.ABI) error {
	abiJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ABI: %w", err)
	}
	err = e.repo.RegisterModule(&repository.Module{
		Ref:       ref,
		Kind:      kind,
		Code:      code,
		ABI:       abiJSON,
		Contracts: schema.ContractNames(),
	})
	if err != nil {
		return fmt.Errorf("failed to save module: %w", err)
	}
	slog.Info("module deployed", "ref", ref, "kind", kind, "contracts", schema.ContractNames())
	return nil
}

// Initialize runs the initializer of contract and stores the new instance.
// The sender of the active transaction becomes the owner.
func (e *Engine) Initialize(ctx context.Context, ref core.Hash, contract string, param []byte) (addr core.Address, err error) {
	begin := time.Now()
	kind := ""
	meter := NewGasMeter(e.config.GasLimit)
	defer func() { e.metrics.called("init", kind, begin, meter.Used(), err) }()

	if err := e.checkParameter(param); err != nil {
		return core.ZeroAddress, err
	}
	if err := meter.Consume(InitBaseCost); err != nil {
		return core.ZeroAddress, err
	}
	if err := meter.ConsumeBytes(len(param)); err != nil {
		return core.ZeroAddress, err
	}

	mod, schema, err := e.loadModule(ref)
	if err != nil {
		return core.ZeroAddress, err
	}
	kind = string(mod.Kind)
	if _, err := schema.Contract(contract); err != nil {
		return core.ZeroAddress, err
	}
	rt, err := e.runtime(mod)
	if err != nil {
		return core.ZeroAddress, err
	}

	bc := e.GetContext()
	sender := bc.Sender()
	ic := &initContext{
		origin: sender,
		height: bc.BlockHeight(),
		time:   bc.BlockTime(),
		param:  param,
	}
	sb := newStateBuilder()
	runCtx, monitor := e.limiter.StartMonitoring(ctx, core.InitName(contract))
	state, err := rt.init(runCtx, mod, contract, ic, sb)
	if terr := monitor.Stop(); terr != nil {
		return core.ZeroAddress, terr
	}
	if err != nil {
		return core.ZeroAddress, fmt.Errorf("%s: %w", core.InitName(contract), err)
	}
	if state == nil {
		state = []byte{}
	}
	if err := meter.ConsumeBytes(len(state) + sb.size()); err != nil {
		return core.ZeroAddress, err
	}

	e.initMu.Lock()
	defer e.initMu.Unlock()
	nonce, err := bc.InstanceNonce(sender)
	if err != nil {
		return core.ZeroAddress, fmt.Errorf("failed to get instance nonce: %w", err)
	}
	addr = api.DefaultContractAddressGenerator(ref, contract, sender, nonce)
	inst := &types.Instance{
		Address:  addr,
		Module:   ref,
		Contract: contract,
		Owner:    sender,
		State:    state,
		Height:   bc.BlockHeight(),
	}
	if len(sb.entries) > 0 {
		inst.Entries = sb.entries
	}
	if err := bc.CreateInstance(inst); err != nil {
		return core.ZeroAddress, fmt.Errorf("failed to create instance: %w", err)
	}
	bc.Log(addr, InitializedEvent, "module", ref.String(), "contract", contract, "owner", sender.String())

	slog.Info("contract initialized", "address", addr, "module", ref, "contract", contract, "gas", meter.Used())
	return addr, nil
}

// Invoke calls entrypoint on the instance at addr. The instance state is
// never written.
func (e *Engine) Invoke(ctx context.Context, addr core.Address, entrypoint string, param []byte) (result *types.ExecutionResult, err error) {
	begin := time.Now()
	kind := ""
	meter := NewGasMeter(e.config.GasLimit)
	defer func() { e.metrics.called("invoke", kind, begin, meter.Used(), err) }()

	if err := e.checkParameter(param); err != nil {
		return nil, err
	}
	if err := meter.Consume(InvokeBaseCost); err != nil {
		return nil, err
	}
	if err := meter.ConsumeBytes(len(param)); err != nil {
		return nil, err
	}

	bc := e.GetContext()
	inst, err := bc.GetInstance(addr)
	if err != nil {
		return nil, err
	}
	mod, schema, err := e.loadModule(inst.Module)
	if err != nil {
		return nil, err
	}
	kind = string(mod.Kind)
	c, err := schema.Contract(inst.Contract)
	if err != nil {
		return nil, err
	}
	if _, err := c.Entrypoint(entrypoint); err != nil {
		return nil, err
	}
	rt, err := e.runtime(mod)
	if err != nil {
		return nil, err
	}

	rc := &receiveContext{
		origin: bc.Sender(),
		sender: bc.Sender(),
		self:   addr,
		owner:  inst.Owner,
		height: bc.BlockHeight(),
		time:   bc.BlockTime(),
		param:  param,
	}
	h := &host{state: inst.State, entries: inst.Entries}
	runCtx, monitor := e.limiter.StartMonitoring(ctx, core.ReceiveName(inst.Contract, entrypoint))
	ret, err := rt.receive(runCtx, mod, inst.Contract, entrypoint, rc, h)
	if terr := monitor.Stop(); terr != nil {
		return nil, terr
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", core.ReceiveName(inst.Contract, entrypoint), err)
	}
	if err := meter.ConsumeBytes(len(ret)); err != nil {
		return nil, err
	}

	slog.Debug("contract invoked", "address", addr, "entrypoint", entrypoint, "gas", meter.Used(), "gas_remaining", meter.Remaining())
	return &types.ExecutionResult{ReturnValue: ret, GasUsed: meter.Used()}, nil
}

// Schema returns the ABI of a deployed module
func (e *Engine) Schema(ref core.Hash) (*abi.ABI, error) {
	_, schema, err := e.loadModule(ref)
	return schema, err
}

// Modules returns the references of all deployed modules
func (e *Engine) Modules() ([]core.Hash, error) {
	return e.repo.ListModules()
}

// Instance returns the instance stored at addr
func (e *Engine) Instance(addr core.Address) (*types.Instance, error) {
	return e.GetContext().GetInstance(addr)
}

// Instances returns all instances of the active context
func (e *Engine) Instances() ([]*types.Instance, error) {
	return e.GetContext().ListInstances()
}

// Events returns the events logged for an instance
func (e *Engine) Events(addr core.Address) ([]types.Event, error) {
	return e.GetContext().Events(addr)
}

// Close closes the wazero runtime and the blockchain context
func (e *Engine) Close() error {
	var errs []error
	if err := e.wazero.Close(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("failed to close wazero runtime: %w", err))
	}
	if err := e.GetContext().Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close blockchain context: %w", err))
	}
	return errors.Join(errs...)
}

func (e *Engine) checkParameter(param []byte) error {
	if len(param) > e.config.MaxParameterSize {
		return fmt.Errorf("parameter size %d exceeds %d: %w", len(param), e.config.MaxParameterSize, core.ErrInvalidArgument)
	}
	return nil
}

func (e *Engine) loadModule(ref core.Hash) (*repository.Module, *abi.ABI, error) {
	mod, err := e.repo.GetModule(ref)
	if err != nil {
		return nil, nil, err
	}
	var schema abi.ABI
	if err := json.Unmarshal(mod.ABI, &schema); err != nil {
		return nil, nil, fmt.Errorf("failed to parse ABI of %s: %w", ref, err)
	}
	return mod, &schema, nil
}

func (e *Engine) runtime(mod *repository.Module) (contractRuntime, error) {
	rt, ok := e.runtimes[mod.Kind]
	if !ok {
		return nil, fmt.Errorf("module %s has unknown kind %q", mod.Ref, mod.Kind)
	}
	return rt, nil
}
