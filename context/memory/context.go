// Package memory is a BlockchainContext that lives in process memory.
// It is the backend used by tests and by one-shot CLI runs.
package memory

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/govm-net/helloworld/context"
	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/types"
)

// defaultBlockchainContext implements types.BlockchainContext in memory
type defaultBlockchainContext struct {
	mu sync.Mutex

	// Block information
	blockHeight uint64
	blockTime   int64
	blockHash   core.Hash

	// Current transaction
	txHash       core.Hash
	sender       core.Address
	contractAddr core.Address

	instances map[core.Address]*types.Instance
	nonces    map[core.Address]uint64
	events    []types.Event
}

func init() {
	if err := context.Register(context.MemoryContextType, NewBlockchainContext); err != nil {
		panic(err)
	}
}

// NewBlockchainContext creates an empty in-memory context. params is ignored.
func NewBlockchainContext(params map[string]any) (types.BlockchainContext, error) {
	return &defaultBlockchainContext{
		instances: make(map[core.Address]*types.Instance),
		nonces:    make(map[core.Address]uint64),
	}, nil
}

func (ctx *defaultBlockchainContext) SetBlockInfo(height uint64, time int64, hash core.Hash) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.blockHeight = height
	ctx.blockTime = time
	ctx.blockHash = hash
	return nil
}

func (ctx *defaultBlockchainContext) SetTransactionInfo(hash core.Hash, from core.Address, to core.Address, value uint64) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.txHash = hash
	ctx.sender = from
	ctx.contractAddr = to
	return nil
}

func (ctx *defaultBlockchainContext) BlockHeight() uint64 {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.blockHeight
}

func (ctx *defaultBlockchainContext) BlockTime() int64 {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.blockTime
}

func (ctx *defaultBlockchainContext) TransactionHash() core.Hash {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.txHash
}

func (ctx *defaultBlockchainContext) Sender() core.Address {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.sender
}

func (ctx *defaultBlockchainContext) CreateInstance(inst *types.Instance) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if _, exists := ctx.instances[inst.Address]; exists {
		return fmt.Errorf("instance %s: %w", inst.Address, core.ErrInstanceExists)
	}
	ctx.instances[inst.Address] = cloneInstance(inst)
	ctx.nonces[inst.Owner]++
	return nil
}

func (ctx *defaultBlockchainContext) GetInstance(addr core.Address) (*types.Instance, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	inst, ok := ctx.instances[addr]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", addr, core.ErrInstanceNotFound)
	}
	return cloneInstance(inst), nil
}

func (ctx *defaultBlockchainContext) ListInstances() ([]*types.Instance, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	out := make([]*types.Instance, 0, len(ctx.instances))
	for _, inst := range ctx.instances {
		out = append(out, cloneInstance(inst))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height < out[j].Height
		}
		return out[i].Address.String() < out[j].Address.String()
	})
	return out, nil
}

func (ctx *defaultBlockchainContext) InstanceNonce(owner core.Address) (uint64, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.nonces[owner], nil
}

func (ctx *defaultBlockchainContext) Log(contract core.Address, eventName string, keyValues ...any) {
	ctx.mu.Lock()
	event := types.Event{
		BlockHeight: ctx.blockHeight,
		TxHash:      ctx.txHash,
		Contract:    contract,
		Name:        eventName,
		KeyValues:   keyValues,
		Time:        time.Now(),
	}
	ctx.events = append(ctx.events, event)
	ctx.mu.Unlock()

	params := []any{"block", event.BlockHeight, "contract", contract, "event", eventName}
	params = append(params, keyValues...)
	slog.Debug("contract event", params...)
}

func (ctx *defaultBlockchainContext) Events(contract core.Address) ([]types.Event, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	var out []types.Event
	for _, ev := range ctx.events {
		if ev.Contract == contract {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (ctx *defaultBlockchainContext) Close() error {
	return nil
}

func cloneInstance(inst *types.Instance) *types.Instance {
	out := *inst
	out.State = append([]byte{}, inst.State...)
	if inst.Entries != nil {
		out.Entries = make(map[string][]byte, len(inst.Entries))
		for k, v := range inst.Entries {
			out.Entries[k] = append([]byte{}, v...)
		}
	}
	return &out
}
